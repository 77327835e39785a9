package session_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/wsloop/wsloop/session"
	"github.com/wsloop/wsloop/wsproto"
)

func writeMasked(t *testing.T, conn net.Conn, final bool, opcode wsproto.Opcode, payload []byte) {
	t.Helper()
	key := [4]byte{0x01, 0x02, 0x03, 0x04}
	var buf bytes.Buffer
	var b0 byte
	if final {
		b0 = 0x80
	}
	b0 |= byte(opcode)
	buf.WriteByte(b0)
	n := len(payload)
	if n > 125 {
		t.Fatalf("test helper only supports short payloads, got %d bytes", n)
	}
	buf.WriteByte(byte(n) | 0x80)
	buf.Write(key[:])
	masked := make([]byte, n)
	for i := range payload {
		masked[i] = payload[i] ^ key[i%4]
	}
	buf.Write(masked)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReceiveData_FragmentedMessage(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := session.New(server, "127.0.0.1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		writeMasked(t, client, false, wsproto.OpText, []byte("foo"))
		writeMasked(t, client, false, wsproto.OpContinuation, []byte("bar"))
		writeMasked(t, client, true, wsproto.OpContinuation, []byte("baz"))
	}()

	if _, ok := s.ReceiveData(); ok {
		t.Fatal("expected no message after first fragment")
	}
	if _, ok := s.ReceiveData(); ok {
		t.Fatal("expected no message after second fragment")
	}
	payload, ok := s.ReceiveData()
	if !ok {
		t.Fatal("expected assembled message on final fragment")
	}
	if string(payload) != "foobarbaz" {
		t.Fatalf("got %q, want %q", payload, "foobarbaz")
	}
	<-done
}

func TestReceiveData_ReassemblyCapClosesSession(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := session.New(server, "127.0.0.1")

	go func() {
		writeMasked(t, client, false, wsproto.OpText, []byte("a"))
		for i := 0; i < session.MaxReassemblyFrames; i++ {
			writeMasked(t, client, false, wsproto.OpContinuation, []byte("b"))
		}
	}()

	closed := false
	for i := 0; i < session.MaxReassemblyFrames+1; i++ {
		if !s.Connected() {
			closed = true
			break
		}
		s.ReceiveData()
	}
	if !closed && s.Connected() {
		t.Fatal("expected session to close once the reassembly buffer overflowed")
	}
}

func TestReceiveData_PingPongMatching(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := session.New(server, "127.0.0.1")

	// Drain the ping frame the test client would otherwise need to read,
	// then reply with a PONG carrying the wrong nonce.
	go func() {
		wsproto.ReadFrame(client)
		writeMasked(t, client, true, wsproto.OpPong, bytes.Repeat([]byte("x"), 16))
	}()

	if err := s.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	s.ReceiveData()
	if !s.PendingPing() {
		t.Fatal("mismatched pong must leave pendingPing set")
	}
}

func TestReceiveData_CloseFrameDisconnects(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	s := session.New(server, "127.0.0.1")

	go func() {
		writeMasked(t, client, true, wsproto.OpClose, nil)
	}()

	s.ReceiveData()
	if s.Connected() {
		t.Fatal("expected session to disconnect on CLOSE frame")
	}
}
