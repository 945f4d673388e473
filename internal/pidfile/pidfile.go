// Package pidfile guards a serve process with an exclusively locked PID file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another purge instance is running")

// PIDFile is a locked file holding the current process ID.
type PIDFile struct {
	path string
	file *os.File
}

// New creates and locks a PID file at path. An empty path returns a nil
// PIDFile and no error; all methods are safe on nil.
func New(path string) (*PIDFile, error) {
	if path == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		holder := "unknown"
		if pid, readErr := ReadPID(path); readErr == nil {
			holder = strconv.Itoa(pid)
		}
		return nil, fmt.Errorf("%w (pid: %s): %v", ErrLocked, holder, err)
	}

	if err := writePID(file); err != nil {
		_ = unlockFile(file)
		file.Close()
		return nil, err
	}

	return &PIDFile{path: path, file: file}, nil
}

func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek pid file: %w", err)
	}
	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync pid file: %w", err)
	}
	return nil
}

// Close releases the lock and removes the file. Calling it twice is safe.
func (p *PIDFile) Close() error {
	if p == nil || p.file == nil {
		return nil
	}

	_ = unlockFile(p.file)
	closeErr := p.file.Close()
	p.file = nil
	if closeErr != nil {
		return fmt.Errorf("close pid file: %w", closeErr)
	}

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// ReadPID reads the PID stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether a process with the given PID exists.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return processExists(pid)
}
