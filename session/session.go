// Package session implements the per-connection client session state
// machine (component D): handshake, message reassembly, and liveness.
package session

import (
	"bytes"
	"crypto/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/wsloop/wsloop/handshake"
	"github.com/wsloop/wsloop/wsproto"
)

// State is a session's position in the lifecycle diagram of spec.md §4.D.
type State int

const (
	StateNew State = iota
	StateRequestPending
	StateHandshaken
	StateStreaming
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRequestPending:
		return "request-pending"
	case StateHandshaken:
		return "handshaken"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Timeouts and buffer bound mandated by spec.md §4.D.
const (
	TimeoutPingResponse = 4000 * time.Millisecond
	TimeoutHandshake    = 4000 * time.Millisecond
	MaxReassemblyFrames = 8
)

// nextID hands out process-unique session identifiers for server bookkeeping.
var nextID int64

// Session is one accepted socket's worth of WebSocket state, owned
// exclusively by the server's single coordinator goroutine (spec.md §5):
// no internal locking is needed because nothing but that goroutine ever
// touches a Session.
type Session struct {
	id   int64
	conn net.Conn

	ipAddr      string
	connectedAt time.Time
	pingedAt    time.Time

	connected          bool
	handshakePerformed bool
	requestReceived    bool
	requestAccepted    bool

	state State

	pendingPing *[16]byte

	// reassembly holds the data frames of an in-flight fragmented message,
	// backed by a bounded ring-buffer FIFO (github.com/eapache/queue)
	// rather than an unbounded slice: spec.md §9 calls for the bound to
	// terminate the session instead of letting the buffer grow.
	reassembly       *queue.Queue
	reassemblyOpcode wsproto.Opcode
}

// New constructs a Session for a freshly accepted connection.
func New(conn net.Conn, ipAddr string) *Session {
	now := time.Now()
	return &Session{
		id:          atomic.AddInt64(&nextID, 1),
		conn:        conn,
		ipAddr:      ipAddr,
		connectedAt: now,
		connected:   true,
		state:       StateNew,
		reassembly:  queue.New(),
	}
}

func (s *Session) ID() int64                 { return s.id }
func (s *Session) Conn() net.Conn            { return s.conn }
func (s *Session) IPAddr() string            { return s.ipAddr }
func (s *Session) ConnectedAt() time.Time    { return s.connectedAt }
func (s *Session) Connected() bool           { return s.connected }
func (s *Session) HandshakePerformed() bool  { return s.handshakePerformed }
func (s *Session) RequestReceived() bool     { return s.requestReceived }
func (s *Session) RequestAccepted() bool     { return s.requestAccepted }
func (s *Session) State() State              { return s.state }

// ReceiveRequest parses the client's upgrade request (component C).
// It is idempotent and only meaningful in StateNew/StateRequestPending.
// On a malformed request it writes the 400 response itself and closes
// the session, per spec.md §4.C "Failure at any step".
func (s *Session) ReceiveRequest() (handshake.Request, bool) {
	if s.state != StateNew && s.state != StateRequestPending {
		return handshake.Request{}, false
	}
	s.state = StateRequestPending
	s.requestReceived = true

	req, err := handshake.ParseRequest(s.conn)
	if err != nil {
		handshake.WriteError(s.conn, 400)
		s.state = StateError
		s.Disconnect()
		return handshake.Request{}, false
	}
	return req, true
}

// AcceptRequest marks the request accepted by the host application,
// enabling `online` accounting on disconnect (spec.md §4.D).
func (s *Session) AcceptRequest() {
	s.requestAccepted = true
}

// Reject writes a 400 response and closes the session, for a request the
// host application declined (spec.md §4.E step 3).
func (s *Session) Reject() {
	handshake.WriteError(s.conn, 400)
	s.state = StateError
	s.Disconnect()
}

// PerformHandshake writes the 101 Switching Protocols response exactly
// once per session, transitioning directly to StateStreaming on success. A write
// failure closes the session (spec.md §4.D).
func (s *Session) PerformHandshake(secWebSocketKey string) error {
	if s.handshakePerformed {
		return nil
	}
	if err := handshake.WriteAccept(s.conn, secWebSocketKey); err != nil {
		s.Disconnect()
		return err
	}
	s.handshakePerformed = true
	s.state = StateStreaming
	return nil
}

// Redirect writes a pre-handshake 301/302/307 response. Only valid
// before the handshake completes; does not mutate handshake state.
func (s *Session) Redirect(code int, location string) error {
	return handshake.WriteRedirect(s.conn, code, location)
}

// Error writes a pre-handshake 400/401/403/404 response. Only valid
// before the handshake completes; does not mutate handshake state.
func (s *Session) Error(code int) error {
	return handshake.WriteError(s.conn, code)
}

// ReceiveData reads one frame (component B) and applies spec.md §4.D's
// control/data handling. It returns (payload, true) exactly when a
// complete message was assembled this call; otherwise (nil, false),
// which the caller should treat as "no application event this round" —
// the session may or may not still be connected.
func (s *Session) ReceiveData() ([]byte, bool) {
	f, err := wsproto.ReadFrame(s.conn)
	if err != nil {
		s.Disconnect()
		return nil, false
	}

	if f.Opcode.IsControl() {
		s.handleControl(f)
		return nil, false
	}

	if f.Opcode == wsproto.OpContinuation {
		if s.reassembly.Length() == 0 {
			// Continuation without a preceding start frame: protocol error.
			s.Disconnect()
			return nil, false
		}
		if s.reassembly.Length() >= MaxReassemblyFrames {
			s.Disconnect()
			return nil, false
		}
		s.reassembly.Add(f)
	} else {
		if s.reassembly.Length() > 0 {
			// A new data frame mid-reassembly: RFC 6455 §5.4 forbids
			// interleaving messages. Close rather than silently discard
			// the partial message (spec.md §9 REDESIGN FLAG).
			s.Disconnect()
			return nil, false
		}
		s.reassemblyOpcode = f.Opcode
		s.reassembly.Add(f)
	}

	if !f.Final {
		return nil, false
	}
	return s.drainReassembly(), true
}

// drainReassembly concatenates the buffered frames' payloads in order and
// clears the buffer.
func (s *Session) drainReassembly() []byte {
	var buf bytes.Buffer
	for s.reassembly.Length() > 0 {
		fr := s.reassembly.Peek().(wsproto.Frame)
		buf.Write(fr.Payload)
		s.reassembly.Remove()
	}
	return buf.Bytes()
}

// handleControl implements the CLOSE/PING/PONG handling of spec.md §4.D.
func (s *Session) handleControl(f wsproto.Frame) {
	switch f.Opcode {
	case wsproto.OpClose:
		s.Disconnect()
	case wsproto.OpPing:
		wsproto.WriteFrame(s.conn, wsproto.Frame{Final: true, Opcode: wsproto.OpPong, Payload: f.Payload})
	case wsproto.OpPong:
		if s.pendingPing != nil && bytes.Equal(f.Payload, s.pendingPing[:]) {
			s.pendingPing = nil
		}
	}
}

// SendTextualData emits one final TEXT frame.
func (s *Session) SendTextualData(data []byte) error {
	return wsproto.WriteFrame(s.conn, wsproto.Frame{Final: true, Opcode: wsproto.OpText, Payload: data})
}

// SendBinaryData emits one final BINARY frame.
func (s *Session) SendBinaryData(data []byte) error {
	return wsproto.WriteFrame(s.conn, wsproto.Frame{Final: true, Opcode: wsproto.OpBinary, Payload: data})
}

// Ping sends a PING carrying a fresh 16-byte nonce and records it as the
// outstanding ping awaiting a matching PONG.
func (s *Session) Ping() error {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	if err := wsproto.WriteFrame(s.conn, wsproto.Frame{Final: true, Opcode: wsproto.OpPing, Payload: nonce[:]}); err != nil {
		s.Disconnect()
		return err
	}
	s.pendingPing = &nonce
	s.pingedAt = time.Now()
	return nil
}

// PendingPing reports whether a PING is outstanding, for tests and metrics.
func (s *Session) PendingPing() bool { return s.pendingPing != nil }

// CheckTimeouts closes the session if a handshake or ping response is
// overdue, per spec.md §4.D.
func (s *Session) CheckTimeouts(now time.Time) {
	if s.pendingPing != nil && now.Sub(s.pingedAt) > TimeoutPingResponse {
		s.Disconnect()
		return
	}
	if !s.handshakePerformed && now.Sub(s.connectedAt) > TimeoutHandshake {
		s.Disconnect()
	}
}

// Disconnect idempotently tears down the socket and marks the session
// disconnected. No operation on a Session has effect afterward.
func (s *Session) Disconnect() {
	if !s.connected {
		return
	}
	s.connected = false
	s.state = StateClosed
	s.conn.Close()
}
