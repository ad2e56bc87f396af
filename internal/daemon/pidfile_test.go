package daemon

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	err := pf.WritePID(12345)
	require.NoError(t, err)

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Write_CurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	err := pf.Write()
	require.NoError(t, err)

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.pid")
	pf := NewPIDFile(path)

	_, err := pf.Read()
	assert.Error(t, err)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	pf := NewPIDFile(path)
	_, err := pf.Read()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(1))

	err := pf.Remove()
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Remove_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.pid")
	pf := NewPIDFile(path)

	err := pf.Remove()
	assert.Error(t, err)
}

func TestPIDFile_IsRunning_CurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write())

	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	// Use a very high PID that almost certainly doesn't exist.
	require.NoError(t, pf.WritePID(999999))

	pid, running := pf.IsRunning()
	// PID is read regardless.
	assert.Equal(t, 999999, pid)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.pid")
	pf := NewPIDFile(path)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write())

	// Signal 0 just checks if process exists, doesn't actually send a signal.
	err := pf.Signal(syscall.Signal(0))
	assert.NoError(t, err)
}

func TestPIDFile_Signal_NoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.pid")
	pf := NewPIDFile(path)

	err := pf.Signal(syscall.Signal(0))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")
}

func TestPIDFile_WritePID_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "btctriage-serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(42))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 42, pid)
}

func TestPIDFile_Acquire(t *testing.T) {
	tests := []struct {
		name    string
		existing int
		wantErr bool
	}{
		{name: "no file"},
		{name: "stale file", existing: 999999},
		{name: "live owner", existing: os.Getpid(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
			if tt.existing != 0 {
				require.NoError(t, pf.WritePID(tt.existing))
			}

			err := pf.Acquire(12345)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAlreadyRunning)
				pid, _ := pf.Read()
				assert.Equal(t, tt.existing, pid, "owner must be kept")
				return
			}
			require.NoError(t, err)
			pid, err := pf.Read()
			require.NoError(t, err)
			assert.Equal(t, 12345, pid)
		})
	}
}

func TestPIDFile_Release(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.WritePID(7))

	pf.Release(8)
	_, err := pf.Read()
	require.NoError(t, err, "file owned by another PID must stay")

	pf.Release(7)
	_, err = os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))

	_, err := pf.Stop(context.Background(), syscall.SIGTERM, syscall.SIGKILL, time.Second)
	require.ErrorIs(t, err, ErrNotRunning)
	assert.Contains(t, err.Error(), "not running")
}

func TestPIDFile_Stop_RemovesStaleFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.WritePID(999999))

	_, err := pf.Stop(context.Background(), syscall.SIGTERM, syscall.SIGKILL, time.Second)
	require.ErrorIs(t, err, ErrNotRunning)

	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}
