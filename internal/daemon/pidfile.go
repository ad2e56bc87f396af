// Package daemon tracks the background API server through a PID file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live process owns the file.
var ErrAlreadyRunning = errors.New("already running")

// ErrNotRunning is returned by Stop when no live process owns the file.
var ErrNotRunning = errors.New("not running")

// PIDFile records which process is serving.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes pid to the file, creating its directory.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire claims the file for pid. A stale file left by a dead process is
// replaced; a file already naming pid is accepted.
func (p *PIDFile) Acquire(pid int) error {
	if owner, running := p.IsRunning(); running && owner != pid {
		return fmt.Errorf("server %w (PID %d)", ErrAlreadyRunning, owner)
	}
	return p.WritePID(pid)
}

// Release removes the file if it still names pid.
func (p *PIDFile) Release(pid int) {
	if owner, err := p.Read(); err == nil && owner == pid {
		_ = p.Remove()
	}
}

// Stop sends term, waits up to grace for the process to exit and then sends
// kill. The file is removed once the process is gone.
func (p *PIDFile) Stop(ctx context.Context, term, kill syscall.Signal, grace time.Duration) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return 0, fmt.Errorf("server %w", ErrNotRunning)
	}

	if err := p.Signal(term); err != nil {
		return pid, fmt.Errorf("signal PID %d: %w", pid, err)
	}
	if !p.waitExit(ctx, grace) {
		if err := p.Signal(kill); err != nil {
			return pid, fmt.Errorf("kill PID %d: %w", pid, err)
		}
		p.waitExit(ctx, grace)
	}
	_ = p.Remove()
	return pid, nil
}

func (p *PIDFile) waitExit(ctx context.Context, grace time.Duration) bool {
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, running := p.IsRunning(); !running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}
