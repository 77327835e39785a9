//go:build linux
// +build linux

// Linux epoll(7)-based reactor implementation, adapted from the teacher's
// reactor/reactor_linux.go: same EpollCreate1/EpollCtl/EpollWait shape,
// generalized to carry a caller-supplied userData value per fd (looked up
// in a plain map rather than packed into the kernel event struct) so
// wsserver can key registrations on session IDs instead of raw fds.
package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd     int
	userData map[int32]uintptr
}

// NewReactor constructs the Linux epoll-backed Reactor.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollReactor{
		epfd:     epfd,
		userData: make(map[int32]uintptr),
	}, nil
}

func (r *epollReactor) Register(fd uintptr, userData uintptr) error {
	event := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &event); err != nil {
		return err
	}
	r.userData[int32(fd)] = userData
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	delete(r.userData, int32(fd))
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (r *epollReactor) Wait(timeout time.Duration) ([]uintptr, error) {
	events := make([]unix.EpollEvent, 128)
	timeoutMs := int(timeout / time.Millisecond)

	n, err := unix.EpollWait(r.epfd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]uintptr, 0, n)
	for i := 0; i < n; i++ {
		if ud, ok := r.userData[events[i].Fd]; ok {
			ready = append(ready, ud)
		}
	}
	return ready, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
