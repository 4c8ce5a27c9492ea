// Copyright 2026 The EXEX Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the daemon's HTTP runtime. Every request flows
// through the policy engine before touching the OS, and every request
// produces an audit event regardless of verdict.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/muhammad-fiaz/exex/internal/audit"
	"github.com/muhammad-fiaz/exex/internal/build"
	"github.com/muhammad-fiaz/exex/internal/policy"
)

const defaultShutdownDelay = 2 * time.Second

// maxRequestBody is the maximum allowed request body size (1MB).
const maxRequestBody = 1 << 20

// Server dispatches authorized exec, filesystem, and launch requests.
type Server struct {
	engine         *policy.Engine
	sink           audit.Sink
	token          string
	logger         *slog.Logger
	metricsEnabled bool
	shutdownDelay  time.Duration
	requestStop    func()
	hub            *eventHub

	listenAddr string
	startedAt  time.Time

	mu     sync.Mutex
	server *http.Server
}

// Option configures a daemon server.
type Option func(*Server)

// WithToken enables bearer token auth. An empty token leaves the API
// open, which is the default for a loopback-only daemon.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables the /metrics Prometheus endpoint.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.metricsEnabled = enabled
	}
}

// WithShutdownDelay sets the grace period before /api/shutdown stops
// the process.
func WithShutdownDelay(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownDelay = d
		}
	}
}

// WithStopFunc sets the callback /api/shutdown invokes after its delay.
// The CLI wires this to the serve loop's context cancel.
func WithStopFunc(fn func()) Option {
	return func(s *Server) {
		s.requestStop = fn
	}
}

// New creates a daemon server around a policy engine and audit sink.
func New(eng *policy.Engine, sink audit.Sink, opts ...Option) *Server {
	s := &Server{
		engine:        eng,
		sink:          sink,
		logger:        slog.Default(),
		shutdownDelay: defaultShutdownDelay,
		startedAt:     time.Now().UTC(),
		hub:           newEventHub(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if len(s.token) > 4 {
		s.logger.Info("server: auth token", "prefix", s.token[:4]+"…")
	}
	return s
}

// ListenAndServe starts serving HTTP requests at addr.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve starts serving HTTP requests on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.listenAddr = listener.Addr().String()
	srv := s.newHTTPServer(s.listenAddr, s.handler())

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	if err := srv.Serve(listener); err != nil {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, empty before Serve.
func (s *Server) Addr() string {
	return s.listenAddr
}

// newHTTPServer creates an *http.Server with standard timeouts.
func (s *Server) newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Shutdown gracefully stops the server and closes event subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	s.hub.closeAll()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler returns the daemon's HTTP handler, exported for tests.
func (s *Server) Handler() http.Handler {
	return s.handler()
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/exec", s.handleExec)
	mux.HandleFunc("POST /api/read", s.handleRead)
	mux.HandleFunc("POST /api/write", s.handleWrite)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/delete", s.handleDelete)
	mux.HandleFunc("POST /api/create", s.handleCreate)
	mux.HandleFunc("POST /api/rename", s.handleRename)
	mux.HandleFunc("POST /api/open", s.handleOpen)
	mux.HandleFunc("POST /api/shutdown", s.handleShutdown)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("GET /metrics", MetricsHandler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return corsMiddleware(http.MaxBytesHandler(mux, maxRequestBody))
}

// corsMiddleware mirrors the permissive CORS stance of a loopback-only
// daemon that local tooling calls from arbitrary origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"service":        "exex",
		"version":        build.Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return false
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return false
	}
	return true
}

// decodeRequest unmarshals the request body, writing a 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// record writes an audit event and feeds the live event stream. Audit
// failures are logged, never surfaced to the caller.
func (s *Server) record(op string, request map[string]any, verdict policy.Verdict, outcome *audit.Outcome) {
	event := audit.Event{
		ID:        audit.NewEventID(),
		Timestamp: time.Now().UTC(),
		Op:        op,
		Request:   request,
		Verdict: audit.EventVerdict{
			Allowed: verdict.Allowed,
			Reason:  verdict.Reason,
		},
		Outcome: outcome,
	}

	if s.sink != nil {
		if err := s.sink.Write(event); err != nil {
			s.logger.Error("server: audit write failed", "op", op, "error", err)
		}
	}

	s.hub.broadcast(event)

	if s.metricsEnabled {
		ok := outcome == nil || outcome.OK
		RecordRequest(op, verdict.Allowed, ok)
		SetUptime(time.Since(s.startedAt))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
