//go:build unix
// +build unix

package reactor

import (
	"net"
	"testing"
	"time"
)

func TestReactor_WaitReportsReadableConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	tcpServer, ok := server.(*net.TCPConn)
	if !ok {
		t.Fatalf("expected *net.TCPConn, got %T", server)
	}
	rawFile, err := tcpServer.File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	defer rawFile.Close()
	fd := rawFile.Fd()

	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	if err := r.Register(fd, 42); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if ready, _ := r.Wait(20 * time.Millisecond); len(ready) != 0 {
		t.Fatalf("expected no readiness before any write, got %v", ready)
	}

	if _, err := client.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ready, err := r.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 || ready[0] != 42 {
		t.Fatalf("got %v, want [42]", ready)
	}

	if err := r.Unregister(fd); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
}
