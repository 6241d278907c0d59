// Package server provides the read-only HTTP introspection endpoint for an
// event router.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/telnet2/eventrouter/internal/logging"
	"github.com/telnet2/eventrouter/internal/router"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Source is what the server reports on. *router.EventRouter implements it.
type Source interface {
	Stats() router.Stats
	TypeInfos() []router.TypeInfo
	ScopeOf(eventType string) (scope.Scope, error)
	SubscriberCount(eventType string) int
}

// Config holds server configuration.
type Config struct {
	Addr        string
	EnableCORS  bool
	ReadTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:7070",
		EnableCORS:  true,
		ReadTimeout: 10 * time.Second,
	}
}

type sourceBox struct {
	src Source
}

// Server is the introspection HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger
	source  atomic.Pointer[sourceBox]
	started time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a server reporting on src, which may be nil until SetSource.
func New(cfg *Config, src Source) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		log:     logging.Component("server"),
		started: time.Now(),
		closing: make(chan struct{}),
	}
	s.SetSource(src)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// SetSource switches the router being reported on.
func (s *Server) SetSource(src Source) {
	s.source.Store(&sourceBox{src: src})
}

func (s *Server) current() Source {
	if box := s.source.Load(); box != nil {
		return box.src
	}
	return nil
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/stats", s.stats)
	s.router.Get("/stats/stream", s.streamStats)
	s.router.Get("/types", s.listTypes)
	s.router.Get("/types/{type}", s.getType)
}

// Start listens on the configured address and serves until Shutdown.
// It returns once the listener is bound; serve errors are logged.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, err
	}
	s.httpSrv = &http.Server{
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("introspection server stopped")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("introspection server listening")
	return ln.Addr(), nil
}

// Shutdown gracefully shuts down the server and ends open stats streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
