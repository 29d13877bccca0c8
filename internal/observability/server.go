// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LogLens Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks, plus the prometheus metrics the dispatcher records.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the host is ready to serve.
type ReadinessChecker func() bool

// Metrics contains the custom prometheus metrics for LogLens.
type Metrics struct {
	// MessagesTotal counts lifecycle message deliveries by pass
	// ("raw" or "decoded").
	MessagesTotal *prometheus.CounterVec

	// DecodeFailuresTotal counts per-message decode failures by plugin.
	DecodeFailuresTotal *prometheus.CounterVec

	// CommandsTotal counts command dispatches by plugin and status
	// ("accepted" or "rejected").
	CommandsTotal *prometheus.CounterVec

	// ControlDeliveriesTotal counts control-channel fanouts by kind
	// ("msg" or "state").
	ControlDeliveriesTotal *prometheus.CounterVec

	// LifecycleViolationsTotal counts host calls rejected by the
	// lifecycle state machine.
	LifecycleViolationsTotal prometheus.Counter
}

// NewMetrics creates and registers the LogLens metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loglens_messages_total",
				Help: "Total lifecycle message deliveries by pass",
			},
			[]string{"pass"},
		),
		DecodeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loglens_decode_failures_total",
				Help: "Total per-message decode failures by plugin",
			},
			[]string{"plugin"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loglens_commands_total",
				Help: "Total command dispatches by plugin and status",
			},
			[]string{"plugin", "status"},
		),
		ControlDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loglens_control_deliveries_total",
				Help: "Total control-channel fanouts by kind",
			},
			[]string{"kind"},
		),
		LifecycleViolationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "loglens_lifecycle_violations_total",
				Help: "Total host calls rejected by the lifecycle state machine",
			},
		),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.DecodeFailuresTotal,
		m.CommandsTotal,
		m.ControlDeliveriesTotal,
		m.LifecycleViolationsTotal,
	)

	return m
}

// Server provides HTTP endpoints for observability (metrics and health
// probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server. addr is a "host:port"
// listen address; an empty readiness checker means always ready.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// A dedicated registry avoids polluting the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the custom metrics for recording host events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. It returns an error
// channel receiving any serve failure; the channel is closed when the
// server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state so the server can be stopped again.
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" when not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("not ready\n"))
}
