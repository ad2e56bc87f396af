package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/btcmap-triage/internal/api"
	"github.com/joescharf/btcmap-triage/internal/daemon"
	"github.com/joescharf/btcmap-triage/internal/outreach"
)

const stopGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the triage HTTP API in the foreground",
	Long: `Start the HTTP API (/api/v1) in the foreground. By default it listens on
port 8080. Use --port to change it, or 'serve start' to run it in the
background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	dir, _ := configDirFunc()
	return daemon.NewPIDFile(filepath.Join(dir, "btctriage-serve.pid"))
}

func serveLogPath() string {
	dir, _ := configDirFunc()
	return filepath.Join(dir, "btctriage-serve.log")
}

func serveRun(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(os.Getpid()); err != nil {
		return err
	}
	defer pf.Release(os.Getpid())

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	logger := newLogger()
	pipeline, closeCache, err := buildPipeline(ctx, s, cfg, logger, outreach.WithoutWaiting())
	if err != nil {
		return err
	}
	defer closeCache()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:           api.NewServer(s, pipeline, cfg, logger).Router(),
		ReadHeaderTimeout: api.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving API", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server %w (PID %d)", daemon.ErrAlreadyRunning, pid)
	}

	if dryRun {
		ui.DryRunMsg("Would start API server on port %d", viper.GetInt("port"))
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	if err := pf.WritePID(pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("API server started on port %d (PID %d)", viper.GetInt("port"), pid)
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	if dryRun {
		ui.DryRunMsg("Would stop API server")
		return nil
	}
	pid, err := pidFile().Stop(context.Background(), sigTERM(), sigKILL(), stopGrace)
	if err != nil {
		return err
	}
	ui.Success("API server stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("API server is not running")
		return nil
	}
	ui.Success("API server is running (PID %d)", pid)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}
