// Package instancelock implements the single-instance guard of spec.md
// §4.G: a pidfile recording the running process and a "signal the old
// one to die" handshake for the case where a stale process is still
// holding the port. The SIGTERM-then-SIGKILL escalation is grounded in
// the teacher's own process-lifecycle helper for exactly this problem
// (stopping a still-running child), generalized here from a *exec.Cmd
// handle to an externally discovered pid.
package instancelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// SignalWindow bounds how long a freshly-written signal is considered
// live: a signaledAt older than this is treated as abandoned, per
// spec.md §4.G.
const SignalWindow = 30 * time.Second

// killTimeout is how long Signal waits for the old process to exit
// after SIGTERM before escalating to SIGKILL.
const killTimeout = 5 * time.Second

var (
	// ErrHeldByOther is returned by Lock when a live process already
	// holds the pidfile and has not been signaled to exit.
	ErrHeldByOther = errors.New("instancelock: pidfile is held by a running process")
)

// state is the pidfile's on-disk JSON shape.
type state struct {
	Pid        int       `json:"pid"`
	SignaledAt time.Time `json:"signaledAt,omitempty"`
}

// Lock guards a single pidfile path, ensuring at most one wsloop process
// binds the configured port at a time.
type Lock struct {
	Path string
}

// New returns a Lock bound to path but does not touch the filesystem yet.
func New(path string) *Lock {
	return &Lock{Path: path}
}

// Lock acquires the pidfile. If it already names a live process that has
// not been signaled (or was signaled less than SignalWindow ago), Lock
// returns ErrHeldByOther without touching the file: the caller should
// call Signal and retry, or give up. Otherwise Lock overwrites the
// pidfile with the current process's pid and returns nil.
func (l *Lock) Lock() error {
	existing, err := readState(l.Path)
	if err == nil && isLive(existing.Pid) {
		if existing.SignaledAt.IsZero() || time.Since(existing.SignaledAt) < SignalWindow {
			return ErrHeldByOther
		}
	}
	return writeState(l.Path, state{Pid: os.Getpid()})
}

// Signal asks the process currently named in the pidfile to exit: SIGTERM
// first, escalating to SIGKILL if it has not exited within killTimeout.
// It records the attempt's timestamp in the pidfile so a concurrent Lock
// call from the new instance can proceed once the window matures. Signal
// is a no-op if the pidfile names no live process.
func (l *Lock) Signal() error {
	existing, err := readState(l.Path)
	if err != nil {
		return nil
	}
	if !isLive(existing.Pid) {
		return nil
	}

	existing.SignaledAt = time.Now()
	if err := writeState(l.Path, existing); err != nil {
		return err
	}

	if err := signalTerm(existing.Pid); err != nil {
		return err
	}

	deadline := time.Now().Add(killTimeout)
	for time.Now().Before(deadline) {
		if !isLive(existing.Pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if isLive(existing.Pid) {
		return signalKill(existing.Pid)
	}
	return nil
}

// IsLocked reports whether the pidfile currently names a live process.
// A missing pidfile is reported as (false, nil): there is nothing holding
// the lock, which is not itself an error condition. An unreadable or
// corrupt pidfile is reported as (false, err).
func (l *Lock) IsLocked() (bool, error) {
	existing, err := readState(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return isLive(existing.Pid), nil
}

// Release removes the pidfile if it still names this process.
func (l *Lock) Release() error {
	existing, err := readState(l.Path)
	if err != nil {
		return nil
	}
	if existing.Pid != os.Getpid() {
		return nil
	}
	err = os.Remove(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func readState(path string) (state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return state{}, err
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return state{}, fmt.Errorf("instancelock: corrupt pidfile %s: %w", path, err)
	}
	return s, nil
}

func writeState(path string, s state) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
