// Package metrics is the Prometheus-backed replacement for the teacher's
// control.MetricsRegistry (a thread-safe map[string]any): the same idea of
// a single collection point mutated by the server's event loop, but
// exported as real counters and gauges instead of an untyped snapshot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every counter and gauge wsserver reports (spec.md §7).
// A nil *Registry is valid and every method on it is a no-op, so passing
// a Registry to wsserver.New is optional.
type Registry struct {
	SessionsOnline      prometheus.Gauge
	FramesReceivedTotal prometheus.Counter
	FramesSentTotal     prometheus.Counter
	HandshakeFailures   prometheus.Counter
	ProtocolErrorsTotal prometheus.Counter
	PingTimeoutsTotal   prometheus.Counter
	HandshakesTotal     prometheus.Counter
}

// New registers wsloop's metrics against reg and returns the Registry. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose them via promhttp.Handler(). A nil
// reg creates the metrics without registering them anywhere.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SessionsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsloop",
			Name:      "sessions_online",
			Help:      "Number of sessions with an accepted, completed handshake.",
		}),
		FramesReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "frames_received_total",
			Help:      "Total WebSocket frames read from clients.",
		}),
		FramesSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "frames_sent_total",
			Help:      "Total WebSocket frames written to clients.",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "handshake_failures_total",
			Help:      "Total upgrade requests rejected or malformed.",
		}),
		ProtocolErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "protocol_errors_total",
			Help:      "Total frames rejected for violating RFC 6455 framing rules.",
		}),
		PingTimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "ping_timeouts_total",
			Help:      "Total sessions closed for not answering a PING in time.",
		}),
		HandshakesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wsloop",
			Name:      "handshakes_total",
			Help:      "Total completed upgrade handshakes.",
		}),
	}
}

func (r *Registry) incSessionsOnline() {
	if r != nil {
		r.SessionsOnline.Inc()
	}
}

func (r *Registry) decSessionsOnline() {
	if r != nil {
		r.SessionsOnline.Dec()
	}
}

// SessionAccepted records a completed handshake for a session that will be
// counted online until SessionClosed is called for it.
func (r *Registry) SessionAccepted() {
	if r == nil {
		return
	}
	r.HandshakesTotal.Inc()
	r.incSessionsOnline()
}

// SessionClosed records a previously-accepted session going offline.
func (r *Registry) SessionClosed() {
	r.decSessionsOnline()
}

func (r *Registry) FrameReceived() {
	if r != nil {
		r.FramesReceivedTotal.Inc()
	}
}

func (r *Registry) FrameSent() {
	if r != nil {
		r.FramesSentTotal.Inc()
	}
}

func (r *Registry) HandshakeFailed() {
	if r != nil {
		r.HandshakeFailures.Inc()
	}
}

func (r *Registry) ProtocolError() {
	if r != nil {
		r.ProtocolErrorsTotal.Inc()
	}
}

func (r *Registry) PingTimeout() {
	if r != nil {
		r.PingTimeoutsTotal.Inc()
	}
}
