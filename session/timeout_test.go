package session

import (
	"net"
	"testing"
	"time"
)

func TestCheckTimeouts_HandshakeTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := New(server, "127.0.0.1")
	s.connectedAt = time.Now().Add(-TimeoutHandshake - time.Second)

	s.CheckTimeouts(time.Now())

	if s.Connected() {
		t.Fatal("expected session to close after handshake timeout")
	}
}

func TestCheckTimeouts_PingTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := New(server, "127.0.0.1")
	s.handshakePerformed = true
	nonce := [16]byte{}
	s.pendingPing = &nonce
	s.pingedAt = time.Now().Add(-TimeoutPingResponse - time.Second)

	s.CheckTimeouts(time.Now())

	if s.Connected() {
		t.Fatal("expected session to close after ping timeout")
	}
}

func TestCheckTimeouts_LivePeerNotClosed(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := New(server, "127.0.0.1")
	s.handshakePerformed = true

	s.CheckTimeouts(time.Now())

	if !s.Connected() {
		t.Fatal("expected a live handshaken session with no pending ping to stay open")
	}
}
