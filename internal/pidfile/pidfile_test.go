//go:build unix

package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestNew_EmptyPathDisablesLock(t *testing.T) {
	pf, err := New("")
	if err != nil || pf != nil {
		t.Fatalf("expected nil, nil; got %v, %v", pf, err)
	}
	if pf.Path() != "" {
		t.Error("nil PIDFile should have an empty path")
	}
	if err := pf.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}

func TestNew_WritesPIDWithPrivateModes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run", "purge")
	path := filepath.Join(dir, "purge.pid")

	pf, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pf.Close()

	if pf.Path() != path {
		t.Errorf("Path() = %q, want %q", pf.Path(), path)
	}
	pid, err := ReadPID(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("ReadPID = %d, %v; want %d", pid, err, os.Getpid())
	}

	for p, want := range map[string]os.FileMode{dir: 0o700, path: 0o600} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s mode = %o, want %o", p, got, want)
		}
	}
}

func TestNew_SecondInstanceIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purge.pid")

	first, err := New(path)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	defer first.Close()

	second, err := New(path)
	if second != nil {
		second.Close()
		t.Fatal("second New should not return a PIDFile")
	}
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "pid: "+strconv.Itoa(os.Getpid())) {
		t.Errorf("expected holder pid in %q", err)
	}

	// The holder's PID survives the failed attempt.
	if pid, _ := ReadPID(path); pid != os.Getpid() {
		t.Errorf("pid file clobbered: %d", pid)
	}
}

func TestNew_ReusesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purge.pid")
	if err := os.WriteFile(path, []byte("99999999\nleftover garbage\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	pf, err := New(path)
	if err != nil {
		t.Fatalf("stale unlocked file should be taken over: %v", err)
	}
	defer pf.Close()

	data, _ := os.ReadFile(path)
	if string(data) != strconv.Itoa(os.Getpid())+"\n" {
		t.Errorf("stale content not replaced: %q", data)
	}
}

func TestClose_RemovesFileAndReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purge.pid")

	pf, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	again, err := New(path)
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	again.Close()
}

func TestClose_ToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purge.pid")
	pf, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := pf.Close(); err != nil {
		t.Errorf("Close after external removal: %v", err)
	}
}

func TestReadPID(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", "1234", 1234, false},
		{"trailing newline", "1234\n", 1234, false},
		{"surrounding space", "  42 \t\n", 42, false},
		{"empty", "", 0, true},
		{"not a number", "abc", 0, true},
		{"two numbers", "12 34", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.pid")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := ReadPID(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := ReadPID(filepath.Join(t.TempDir(), "missing.pid")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestIsRunning(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	for _, pid := range []int{0, -1} {
		if IsRunning(pid) {
			t.Errorf("IsRunning(%d) = true", pid)
		}
	}
	// Above the default pid_max on Linux and macOS.
	if IsRunning(99999999) {
		t.Error("implausible pid reported as running")
	}
}
