package instancelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLock_AcquiresFreshPidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	l := New(path)

	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	locked, err := l.IsLocked()
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if !locked {
		t.Fatal("expected pidfile to name a live process (this one)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty pidfile")
	}
}

func TestLock_RejectsLiveUnsignaledHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	if err := writeState(path, state{Pid: os.Getpid()}); err != nil {
		t.Fatalf("writeState: %v", err)
	}

	l := New(path)
	if err := l.Lock(); err != ErrHeldByOther {
		t.Fatalf("Lock err = %v, want ErrHeldByOther", err)
	}
}

func TestLock_AcceptsAfterSignalWindowElapses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	if err := writeState(path, state{
		Pid:        os.Getpid(),
		SignaledAt: time.Now().Add(-SignalWindow - time.Second),
	}); err != nil {
		t.Fatalf("writeState: %v", err)
	}

	l := New(path)
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func TestLock_StaleDeadPidIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	// A pid essentially guaranteed not to be alive in the test sandbox.
	if err := writeState(path, state{Pid: 1 << 30}); err != nil {
		t.Fatalf("writeState: %v", err)
	}

	l := New(path)
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func TestSignal_NoOpWhenNoPidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	l := New(path)
	if err := l.Signal(); err != nil {
		t.Fatalf("Signal on missing pidfile: %v", err)
	}
}

func TestRelease_RemovesOwnPidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	l := New(path)
	if err := l.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pidfile removed, stat err = %v", err)
	}
}

func TestRelease_LeavesOtherProcessPidfileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsloop.pid")
	if err := writeState(path, state{Pid: os.Getpid() + 1}); err != nil {
		t.Fatalf("writeState: %v", err)
	}
	l := New(path)
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected pidfile to survive, stat err = %v", err)
	}
}
