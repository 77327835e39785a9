package wsserver

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"time"

	"github.com/wsloop/wsloop/metrics"
	"github.com/wsloop/wsloop/reactor"
	"github.com/wsloop/wsloop/session"
	"github.com/wsloop/wsloop/wserr"
)

// listenerUserData is the reactor userData value reserved for the
// listening socket; session userData values are their session IDs,
// which session.New hands out starting at 1 (spec.md §4.D), so the two
// spaces never collide.
const listenerUserData = 0

// clientEntry pairs a session with the raw fd it was registered under:
// for a TLS session, fd belongs to the pre-handshake net.Conn, while the
// session itself talks through the wrapping *tls.Conn.
type clientEntry struct {
	sess *session.Session
	fd   uintptr
}

type userTimer struct {
	interval time.Duration
	next     time.Time
	fn       func()
}

// Server runs the single-goroutine event loop of spec.md §4.E/§5: one
// coordinator owns the listener, the reactor, and every client session,
// dispatching to Handlers as sessions progress through their lifecycle.
// Grounded in the teacher's server.Server/Run shape (facade + accept
// goroutine + poll loop), collapsed into one goroutine since spec.md §5
// prescribes a single-threaded reactor model rather than the teacher's
// executor pool.
type Server struct {
	cfg      *Config
	handlers Handlers
	metrics  *metrics.Registry
	logger   *log.Logger

	listener net.Listener
	reactor  reactor.Reactor

	clients map[int64]*clientEntry
	timers  []userTimer

	// Ready, if non-nil, is closed once the listener is bound — lets a
	// caller using an ephemeral port (":0") learn the real address via
	// Addr() before dialing it.
	Ready chan struct{}
}

// Addr returns the bound listener address. Only valid once the listener
// is bound, which Ready (if set) signals by being closed; if Run failed
// to bind, there is no listener and Addr must not be called.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// New constructs a Server. reg may be nil to disable metrics collection;
// logger may be nil to use log.Default(), matching the teacher's
// log.Printf idiom throughout server/hioload.go.
func New(cfg *Config, handlers Handlers, reg *metrics.Registry, logger *log.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:      cfg,
		handlers: handlers,
		metrics:  reg,
		logger:   logger,
		clients:  make(map[int64]*clientEntry),
	}
}

// Timer registers a user timer, checked on every loop iteration alongside
// the built-in checkTimeouts/ping sweeps and fired whenever its own
// interval has elapsed (spec.md §4.E step 6, "user timers via
// Server.Timer"). Must be called before Run.
func (s *Server) Timer(interval time.Duration, fn func()) {
	s.timers = append(s.timers, userTimer{interval: interval, next: time.Now().Add(interval), fn: fn})
}

// Run binds the listener and drives the event loop until ctx is
// canceled, then closes every session and returns. It implements
// spec.md §4.E steps 1-6.
func (s *Server) Run(ctx context.Context) error {
	fail := func(e *wserr.Error) error {
		s.handlers.socketError(int(e.Code), e.Message)
		return e
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fail(wserr.Newf(wserr.CodeIO, "listen on %s: %v", s.cfg.ListenAddr, err))
	}
	s.listener = ln
	defer ln.Close()

	r, err := reactor.NewReactor()
	if err != nil {
		return fail(wserr.Newf(wserr.CodeIO, "construct reactor: %v", err))
	}
	s.reactor = r
	defer r.Close()

	lnFd, err := fdOf(ln)
	if err != nil {
		return fail(wserr.Newf(wserr.CodeIO, "register listener: %v", err))
	}
	if err := r.Register(lnFd, listenerUserData); err != nil {
		return fail(wserr.Newf(wserr.CodeIO, "register listener: %v", err))
	}

	if s.Ready != nil {
		close(s.Ready)
	}

	s.handlers.serverStart()
	defer s.handlers.serverStop()

	nextCheckTimeouts := time.Now().Add(s.cfg.IntervalCheckTimeouts)
	nextPing := time.Now().Add(s.cfg.IntervalPing)

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		default:
		}

		ready, waitErr := r.Wait(s.cfg.ReactorWaitCeiling)
		if waitErr != nil {
			s.handlers.serverError(waitErr.Error())
			s.logger.Printf("wsserver: reactor wait: %v", waitErr)
			continue
		}

		for _, ud := range ready {
			if ud == listenerUserData {
				s.acceptOne()
				continue
			}
			s.serviceSession(ud)
		}

		now := time.Now()
		if !now.Before(nextCheckTimeouts) {
			s.sweepTimeouts(now)
			nextCheckTimeouts = now.Add(s.cfg.IntervalCheckTimeouts)
		}
		if !now.Before(nextPing) {
			s.sweepPing(now)
			nextPing = now.Add(s.cfg.IntervalPing)
		}
		for i := range s.timers {
			t := &s.timers[i]
			if !now.Before(t.next) {
				t.fn()
				t.next = now.Add(t.interval)
			}
		}
	}
}

// acceptOne accepts a pending connection, wraps it in TLS if configured,
// and registers the new session with the reactor (spec.md §4.E step 2).
func (s *Server) acceptOne() {
	conn, err := s.listener.Accept()
	if err != nil {
		s.handlers.serverError(err.Error())
		return
	}

	fd, err := fdOf(conn)
	if err != nil {
		s.handlers.socketError(0, err.Error())
		conn.Close()
		return
	}

	var appConn net.Conn = conn
	if s.cfg.Transport == TransportTLS {
		appConn = tls.Server(conn, s.cfg.TLSConfig)
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	sess := session.New(appConn, host)
	entry := &clientEntry{sess: sess, fd: fd}

	if err := s.reactor.Register(fd, uintptr(sess.ID())); err != nil {
		s.handlers.socketError(0, err.Error())
		sess.Disconnect()
		return
	}
	s.clients[sess.ID()] = entry
}

// serviceSession advances one ready session's state machine (spec.md
// §4.E steps 3-5).
func (s *Server) serviceSession(ud uintptr) {
	id := int64(ud)
	entry, ok := s.clients[id]
	if !ok {
		return
	}
	sess := entry.sess

	switch sess.State() {
	case session.StateNew, session.StateRequestPending:
		req, ok := sess.ReceiveRequest()
		if !ok {
			s.metrics.HandshakeFailed()
			s.disconnect(entry)
			return
		}
		s.metrics.FrameReceived()
		if !s.handlers.clientConnect(sess, req) {
			sess.Reject()
			s.disconnect(entry)
			return
		}
		sess.AcceptRequest()
		if err := sess.PerformHandshake(req.Header["sec-websocket-key"]); err != nil {
			s.handlers.socketError(0, err.Error())
			s.disconnect(entry)
			return
		}
		s.metrics.SessionAccepted()

	case session.StateStreaming:
		payload, ok := sess.ReceiveData()
		if !sess.Connected() {
			s.disconnect(entry)
			return
		}
		s.metrics.FrameReceived()
		if ok && !s.handlers.dataReceive(sess, payload) {
			s.disconnect(entry)
		}
	}
}

// disconnect tears down one session: unregisters it from the reactor,
// removes it from the client table, and — only if its handshake had
// completed — decrements `online` and fires ClientDisconnect, matching
// spec.md §4.E step 5's "previously accepted" condition.
func (s *Server) disconnect(entry *clientEntry) {
	wasAccepted := entry.sess.HandshakePerformed()
	entry.sess.Disconnect()
	_ = s.reactor.Unregister(entry.fd)
	delete(s.clients, entry.sess.ID())
	if wasAccepted {
		s.metrics.SessionClosed()
		s.handlers.clientDisconnect(entry.sess)
	}
}

// sweepTimeouts closes any session whose handshake or ping response is
// overdue (spec.md §4.D, §4.E step 6).
func (s *Server) sweepTimeouts(now time.Time) {
	for _, entry := range s.clients {
		wasPending := entry.sess.PendingPing()
		entry.sess.CheckTimeouts(now)
		if !entry.sess.Connected() {
			if wasPending {
				s.metrics.PingTimeout()
			}
			s.disconnect(entry)
		}
	}
}

// sweepPing sends a liveness PING to every streaming session without an
// outstanding one (spec.md §4.E step 6).
func (s *Server) sweepPing(now time.Time) {
	for _, entry := range s.clients {
		if entry.sess.State() != session.StateStreaming || entry.sess.PendingPing() {
			continue
		}
		if err := entry.sess.Ping(); err != nil {
			s.disconnect(entry)
			continue
		}
		s.metrics.FrameSent()
	}
}

func (s *Server) closeAll() {
	for _, entry := range s.clients {
		s.disconnect(entry)
	}
}

// SessionCount returns the number of sessions currently tracked,
// regardless of handshake state — for debug probes and tests.
func (s *Server) SessionCount() int {
	return len(s.clients)
}
