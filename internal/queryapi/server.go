// Package queryapi exposes the archive's range-query and soft-delete
// operations (internal/query) over HTTP, plus a websocket feed that
// streams newly appended records as they land — spec.md §4.9's external
// query interface, implemented as a standalone admin surface since this
// module has no enclosing database to embed it in. It also serves
// /debug/log, a tail of collectord's own in-process application log
// (internal/logging's ring buffer), for operators without a terminal
// attached to a collectord running detached under internal/supervisor.
package queryapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbaudit/collector/internal/logging"
)

// Options configures a Server.
type Options struct {
	Dir         string // audit archive directory, as passed to collector.Open
	BearerToken string // if set, every route except /healthz and /metrics must carry Authorization: Bearer <token>
	Logger      *logging.Logger
}

// Server is the admin HTTP+WS surface over one archive directory.
type Server struct {
	dir         string
	bearerToken string
	log         *logging.Logger

	mux *http.ServeMux

	tailMu  sync.Mutex
	tailers map[*tailClient]bool
}

// NewServer builds a Server and registers its routes.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		dir:         opts.Dir,
		bearerToken: opts.BearerToken,
		log:         log.WithComponent("queryapi"),
		tailers:     make(map[*tailClient]bool),
	}
	s.initRoutes()
	go s.tailLoop()
	return s
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	mux.Handle("GET /api/audit", s.authenticated(s.handleQuery))
	mux.Handle("DELETE /api/audit", s.authenticated(s.handleDelete))
	mux.Handle("GET /api/audit/tail", s.authenticated(s.handleTail))
	mux.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /debug/log", s.authenticated(s.handleDebugLog))
	s.mux = mux
}

// Handler returns the server's http.Handler, wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.accessLog(s.mux)
}

// Start blocks, serving the admin API on addr with conservative timeouts
// against slow or hung clients.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.log.Info("admin API listening", "addr", addr)
	return srv.ListenAndServe()
}

// authenticated rejects requests that don't carry the configured bearer
// token; with no token configured, every request passes (local/dev mode).
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearerToken == "" {
			next(w, r)
			return
		}
		const prefix = "Bearer "
		got := r.Header.Get("Authorization")
		if len(got) <= len(prefix) || got[:len(prefix)] != prefix || got[len(prefix):] != s.bearerToken {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the websocket upgrade
// on /api/audit/tail works behind the access-log wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("queryapi: response writer does not support hijacking")
	}
	return h.Hijack()
}
