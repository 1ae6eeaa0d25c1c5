package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/keyring"
	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/observer"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/worker"
)

// ProviderHealth reports whether the translation provider can currently
// serve requests. *provider.Gemini satisfies it.
type ProviderHealth interface {
	Healthy(ctx context.Context) bool
}

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:8000".
	Addr string

	// Version is reported by the health endpoint.
	Version string

	// MaxUploadSize caps each uploaded file in bytes.
	MaxUploadSize int64

	// GlobalRateLimit is the per-IP sustained request budget per minute.
	GlobalRateLimit int

	// BurstRateLimit is the per-IP short-burst allowance.
	BurstRateLimit int

	// PollingTimeout is the default and maximum long-poll wait for the
	// result endpoint.
	PollingTimeout time.Duration

	// DefaultRPM is the per-credential request budget used for the
	// capacity estimate in the stats endpoint.
	DefaultRPM int

	// MaxWorkers is the cluster-wide worker ceiling reported by the
	// stats endpoint.
	MaxWorkers int
}

// Deps are the components the handlers call into.
type Deps struct {
	Store    *store.Client
	Tasks    *tasks.Manager
	Observer *observer.Observer
	Keys     *keyring.Rotator
	Pool     *worker.Pool
	Provider ProviderHealth
}

// Server exposes the translation service over HTTP.
type Server struct {
	cfg  Config
	deps Deps

	limiter *ipLimiter
	http    *http.Server
	log     zerolog.Logger
}

// NewServer builds a Server. It does not start listening.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newIPLimiter(deps.Store, cfg.GlobalRateLimit, cfg.BurstRateLimit),
		log:     log.WithComponent("api"),
	}
}

// Handler assembles the router. Exposed separately from Start so tests
// can drive the full middleware chain through httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Use(s.limiter.middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/translate", s.handleSubmit)
		r.Get("/translate/result/{taskID}", s.handleResult)
		r.Get("/translate/languages", s.handleLanguages)
		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
	})

	// Bare aliases for load balancers and scrapers.
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Start serves requests until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		// The result endpoint long-polls for up to PollingTimeout, so the
		// write timeout must outlast it.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: s.cfg.PollingTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.log.Info().Msg("http server stopping")
	return s.http.Shutdown(ctx)
}
