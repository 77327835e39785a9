package wsserver

import (
	"github.com/wsloop/wsloop/handshake"
	"github.com/wsloop/wsloop/session"
)

// Handlers is the application's callback surface (component F), per
// spec.md §4.F. Every field is optional: a nil field behaves as a no-op,
// and for the two fields returning bool a nil field behaves as if it had
// returned true, matching the source's "unset handler = allow" default.
// This replaces the original's string-keyed callback lookup with a plain
// struct of typed fields, per spec.md §9.
type Handlers struct {
	ServerStart      func()
	ServerStop       func()
	ServerError      func(message string)
	SocketError      func(code int, message string)
	ClientConnect    func(s *session.Session, r handshake.Request) bool
	ClientDisconnect func(s *session.Session)
	DataReceive      func(s *session.Session, payload []byte) bool
}

func (h Handlers) serverStart() {
	if h.ServerStart != nil {
		h.ServerStart()
	}
}

func (h Handlers) serverStop() {
	if h.ServerStop != nil {
		h.ServerStop()
	}
}

func (h Handlers) serverError(message string) {
	if h.ServerError != nil {
		h.ServerError(message)
	}
}

func (h Handlers) socketError(code int, message string) {
	if h.SocketError != nil {
		h.SocketError(code, message)
	}
}

func (h Handlers) clientConnect(s *session.Session, r handshake.Request) bool {
	if h.ClientConnect == nil {
		return true
	}
	return h.ClientConnect(s, r)
}

func (h Handlers) clientDisconnect(s *session.Session) {
	if h.ClientDisconnect != nil {
		h.ClientDisconnect(s)
	}
}

func (h Handlers) dataReceive(s *session.Session, payload []byte) bool {
	if h.DataReceive == nil {
		return true
	}
	return h.DataReceive(s, payload)
}
