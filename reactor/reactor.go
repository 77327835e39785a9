// Package reactor implements the readiness-selection primitive that
// drives wsserver's single event loop (spec.md §4.E, §5): register a
// socket, block for up to a bounded timeout, and learn which registered
// sockets became readable.
//
// Linux uses epoll (reactor_linux.go), grounded in and adapted from the
// teacher's reactor/reactor_linux.go. Other POSIX platforms fall back to
// a MSG_PEEK poll loop over syscall.RawConn (reactor_unix.go). Platforms
// with neither get the teacher's own answer to the same problem: a stub
// that reports itself unsupported (reactor_stub.go, adapted from the
// teacher's reactor/reactor_stub.go) rather than silently degrading.
package reactor

import "time"

// Reactor multiplexes readiness across a set of registered file
// descriptors. All methods are called only from the server's single
// coordinator goroutine; implementations need not be safe for concurrent
// use from multiple goroutines.
type Reactor interface {
	// Register begins watching fd for read-readiness, associated with
	// the opaque userData value returned by Wait.
	Register(fd uintptr, userData uintptr) error

	// Unregister stops watching fd. It is a no-op if fd was never
	// registered or was already unregistered.
	Unregister(fd uintptr) error

	// Wait blocks for up to timeout for at least one registered fd to
	// become readable, returning the userData values of every fd that
	// did. A zero-length, nil-error result means the timeout elapsed
	// with nothing ready — the caller should run its timer sweep and
	// call Wait again.
	Wait(timeout time.Duration) ([]uintptr, error)

	// Close releases the reactor's resources. No other method may be
	// called afterward.
	Close() error
}
