// Command wsloopd runs a standalone echo server on top of wsserver,
// demonstrating the callback surface end to end. Grounded in the
// teacher's examples/echo/main.go: flag-parsed listen address, signal-
// driven shutdown, per-connection logging.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wsloop/wsloop/handshake"
	"github.com/wsloop/wsloop/instancelock"
	"github.com/wsloop/wsloop/metrics"
	"github.com/wsloop/wsloop/session"
	"github.com/wsloop/wsloop/wsserver"
)

func main() {
	addr := flag.String("addr", ":9001", "WebSocket listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	pidfile := flag.String("pidfile", "", "single-instance pidfile path (disabled if empty)")
	flag.Parse()

	if *pidfile != "" {
		lock := instancelock.New(*pidfile)
		if err := lock.Lock(); err == instancelock.ErrHeldByOther {
			log.Printf("another instance holds %s, signaling it to exit", *pidfile)
			if err := lock.Signal(); err != nil {
				log.Fatalf("signal existing instance: %v", err)
			}
			if err := lock.Lock(); err != nil {
				log.Fatalf("acquire pidfile after signaling: %v", err)
			}
		} else if err != nil {
			log.Fatalf("acquire pidfile: %v", err)
		}
		defer lock.Release()
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	var connCount int32

	cfg := wsserver.DefaultConfig()
	cfg.ListenAddr = *addr

	handlers := wsserver.Handlers{
		ServerStart: func() { log.Printf("wsloopd listening on %s", cfg.ListenAddr) },
		ServerStop:  func() { log.Println("wsloopd stopped") },
		ServerError: func(message string) { log.Printf("server error: %s", message) },
		SocketError: func(code int, message string) { log.Printf("socket error %d: %s", code, message) },
		ClientConnect: func(s *session.Session, r handshake.Request) bool {
			n := atomic.AddInt32(&connCount, 1)
			log.Printf("client connected: id=%d path=%s active=%d", s.ID(), r.Path, n)
			return true
		},
		ClientDisconnect: func(s *session.Session) {
			n := atomic.AddInt32(&connCount, -1)
			log.Printf("client disconnected: id=%d active=%d", s.ID(), n)
		},
		DataReceive: func(s *session.Session, payload []byte) bool {
			if err := s.SendTextualData(payload); err != nil {
				log.Printf("echo to id=%d failed: %v", s.ID(), err)
				return false
			}
			return true
		},
	}

	srv := wsserver.New(cfg, handlers, metricsRegistry, log.Default())

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}
