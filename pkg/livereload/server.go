package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/entrhq/webpreview/pkg/security/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAddr is the push channel's default listen address.
const DefaultAddr = "127.0.0.1:8300"

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr string
	// Ignore lists glob patterns for files that never trigger a reload.
	// Nil means DefaultIgnore.
	Ignore []string
	// Registry receives the push channel's collectors and is served on
	// /metrics. Nil creates a private registry.
	Registry *prometheus.Registry
	// Guard limits which directories may be watched. Nil allows any.
	Guard  *workspace.Guard
	Logger *logging.Logger
}

// Server is the live-reload push channel: a websocket hub fed by a file
// watcher, plus health and metrics endpoints.
type Server struct {
	addr    string
	hub     *Hub
	watcher *Watcher
	guard   *workspace.Guard
	router  chi.Router
	log     *logging.Logger

	httpServer *http.Server
}

// NewServer creates the server. It starts watching as soon as a client
// or a caller registers a project path; it does not listen until Start.
func NewServer(opts Options) (*Server, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard("livereload")
	}

	watcher, err := NewWatcher(opts.Ignore, opts.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:    opts.Addr,
		watcher: watcher,
		guard:   opts.Guard,
		log:     opts.Logger,
	}
	s.hub = NewHub(s.Watch, NewMetrics(opts.Registry), opts.Logger)
	watcher.OnChange(s.hub.FileChanged)

	router := chi.NewRouter()
	router.Get("/health", s.handleHealth)
	router.Get("/ws", s.hub.ServeHTTP)
	router.Get("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	s.router = router
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Watch starts watching projectPath. It lets the server stand in as the
// preview router's watcher.
func (s *Server) Watch(projectPath string) error {
	if s.guard != nil {
		if err := s.guard.ValidatePath(projectPath); err != nil {
			return err
		}
	}
	return s.watcher.Watch(projectPath)
}

// OnChange registers fn to be called for every changed file.
func (s *Server) OnChange(fn func(path string)) {
	s.watcher.OnChange(fn)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infof("live-reload server listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.closeQuietly()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.closeQuietly()
	return err
}

func (s *Server) closeQuietly() {
	if err := s.Close(); err != nil {
		s.log.Warnf("closing file watcher: %v", err)
	}
}

// Close stops the watcher and disconnects clients without touching the
// HTTP listener.
func (s *Server) Close() error {
	s.hub.Close()
	return s.watcher.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Clients(),
	})
}
