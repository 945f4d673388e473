// Package daemon runs the long-lived serve mode: it owns the PID file, the
// health endpoints, signal handling and the lifetime of the serve loop.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/pidfile"
)

// State represents the current daemon state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServeFunc is the foreground loop. It must return once ctx is canceled.
type ServeFunc func(ctx context.Context) error

// StatusFunc adds fields to the /status response.
type StatusFunc func() map[string]any

// Config holds daemon configuration.
type Config struct {
	// HealthAddr enables /health, /ready and /status when set.
	HealthAddr string
	PIDFile    string
	// ShutdownTimeout bounds how long Run waits for the serve loop after
	// cancellation. Default 10s.
	ShutdownTimeout time.Duration
	Status          StatusFunc
}

// Daemon manages the lifecycle of a purge serve process.
type Daemon struct {
	log   logger.Logger
	serve ServeFunc
	cfg   Config

	state     atomic.Int32
	startedAt atomic.Int64
	stopOnce  sync.Once
	stopCh    chan struct{}

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	serveErr   error
}

// New creates a daemon around serve. A nil serve runs until stopped.
func New(log logger.Logger, serve ServeFunc, cfg Config) *Daemon {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	d := &Daemon{
		log:    log,
		serve:  serve,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	d.state.Store(int32(StateStarting))
	return d
}

// Run starts the daemon and blocks until the serve loop ends, ctx is
// canceled, Stop is called, or SIGINT/SIGTERM arrives. Cancellation is
// propagated to the serve loop. The serve loop's error is returned unless
// it is a cancellation.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("daemon starting", logger.F("health_addr", d.cfg.HealthAddr), logger.F("pid", os.Getpid()))

	pf, err := pidfile.New(d.cfg.PIDFile)
	if err != nil {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("acquire pid file: %w", err)
	}
	defer func() {
		if err := pf.Close(); err != nil {
			d.log.Warn("pid file cleanup failed", logger.F("error", err.Error()))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := d.startHTTP(); err != nil {
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("start health server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.startedAt.Store(time.Now().UnixNano())

	var serveDone chan error
	if d.serve != nil {
		serveDone = make(chan error, 1)
		d.state.Store(int32(StateRunning))
		go func() { serveDone <- d.safeServe(ctx) }()
	} else {
		d.state.Store(int32(StateReady))
	}
	d.log.Info("daemon ready")

	finished := false
	select {
	case err := <-serveDone:
		finished = true
		d.setServeErr(err)
		d.log.Info("serve loop finished")
	case sig := <-sigCh:
		d.log.Info("received signal", logger.F("signal", sig.String()))
	case <-ctx.Done():
		d.log.Info("context canceled")
	case <-d.stopCh:
		d.log.Info("stop requested")
	}

	d.state.Store(int32(StateStopping))
	d.log.Info("daemon stopping")
	cancel()

	if serveDone != nil && !finished {
		select {
		case err := <-serveDone:
			d.setServeErr(err)
		case <-time.After(d.cfg.ShutdownTimeout):
			d.log.Warn("serve loop did not stop in time", logger.F("timeout", d.cfg.ShutdownTimeout.String()))
		}
	}

	d.stopHTTP()

	d.state.Store(int32(StateStopped))
	d.log.Info("daemon stopped")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serveErr != nil && !errors.Is(d.serveErr, context.Canceled) {
		return d.serveErr
	}
	return nil
}

// Stop signals the daemon to shut down. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// State returns the current daemon state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// HealthAddr returns the bound health address, or "" when disabled or
// not yet listening.
func (d *Daemon) HealthAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Uptime returns how long the daemon has been ready.
func (d *Daemon) Uptime() time.Duration {
	start := d.startedAt.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

func (d *Daemon) setServeErr(err error) {
	d.mu.Lock()
	d.serveErr = err
	d.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		d.log.Error("serve loop failed", logger.F("error", err.Error()))
	}
}

func (d *Daemon) safeServe(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("serve panicked: %v", p)
		}
	}()
	return d.serve(ctx)
}

func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok", "state": d.State().String()})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		state := d.State()
		ready := state == StateReady || state == StateRunning
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		d.writeJSONResponse(w, code, map[string]any{"ready": ready, "state": state.String()})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			d.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		status := map[string]any{}
		if d.cfg.Status != nil {
			for k, v := range d.cfg.Status() {
				status[k] = v
			}
		}
		status["state"] = d.State().String()
		status["pid"] = os.Getpid()
		status["uptime_seconds"] = d.Uptime().Seconds()
		d.writeJSONResponse(w, http.StatusOK, status)
	})

	return mux
}

func (d *Daemon) startHTTP() error {
	if d.cfg.HealthAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", d.cfg.HealthAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           d.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.mu.Lock()
	d.listener = ln
	d.httpServer = srv
	d.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("health server error", logger.F("error", err.Error()))
		}
	}()
	d.log.Info("health server listening", logger.F("addr", ln.Addr().String()))
	return nil
}

func (d *Daemon) stopHTTP() {
	d.mu.Lock()
	srv := d.httpServer
	d.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		d.log.Warn("health server shutdown error", logger.F("error", err.Error()))
	}
}

func (d *Daemon) writeJSONResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.log.Debug("write response failed", logger.F("error", err.Error()))
	}
}

func (d *Daemon) writeJSONError(w http.ResponseWriter, code int, msg string) {
	d.writeJSONResponse(w, code, map[string]string{"error": msg})
}
