package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = "127.0.0.1:9090"

// Server exposes one registry on /metrics. The registry also carries the
// handler's own scrape metrics.
type Server struct {
	addr   string
	server *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer serves reg on addr. A nil reg serves the default registry.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	var (
		g prometheus.Gatherer   = prometheus.DefaultGatherer
		r prometheus.Registerer = prometheus.DefaultRegisterer
	)
	if reg != nil {
		g, r = reg, reg
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(r,
		promhttp.HandlerFor(g, promhttp.HandlerOpts{Registry: r})))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Listen binds the address without serving, so bind errors surface before
// the caller moves on. Calling it twice is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Serve blocks until Shutdown. It binds first if Listen was not called.
// A graceful shutdown returns nil.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr is the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}
