//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op; Windows has no session to detach from.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals stop a foreground server gracefully.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Both map to process termination in daemon.PIDFile.Signal.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
