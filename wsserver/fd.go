package wsserver

import (
	"fmt"
	"syscall"
)

// fdOf extracts the raw file descriptor backing conn (a *net.TCPConn,
// *net.TCPListener, or anything else exposing SyscallConn) for
// registration with a reactor.Reactor. It must be called on the raw,
// pre-TLS connection: crypto/tls.Conn does not implement syscall.Conn.
func fdOf(conn any) (uintptr, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("wsserver: %T exposes no raw file descriptor", conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, err
	}
	return fd, nil
}
