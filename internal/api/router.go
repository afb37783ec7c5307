package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/whisperapi/internal/api/handlers"
	"github.com/nikhilbhutani/whisperapi/internal/api/middleware"
	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/config"
)

// Deps are the services the router serves. Jobs, Usage, DB and Redis may be nil
// (leave the interface itself nil, not a typed nil pointer); their routes then answer 503.
type Deps struct {
	Transcriber handlers.Transcriber
	Jobs        handlers.JobService
	Usage       handlers.UsageReader
	DB          handlers.Pinger
	Redis       handlers.Pinger
}

type Router struct {
	mux   *chi.Mux
	cfg   *config.Config
	deps  Deps
	authn *auth.Authenticator
	rl    *middleware.RateLimiter
}

// NewRouter builds the router. ctx bounds the rate limiter's janitor goroutine.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		cfg:   cfg,
		deps:  deps,
		authn: auth.NewAuthenticator(cfg.Auth),
		rl:    middleware.NewRateLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Transcriber, map[string]handlers.Pinger{
		"database": rt.deps.DB,
		"redis":    rt.deps.Redis,
	})
	r.Get("/", health.Root)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	maxUpload := rt.cfg.Transcription.MaxUploadBytes
	transcriptionH := handlers.NewTranscriptionHandler(rt.deps.Transcriber, maxUpload)
	jobsH := handlers.NewJobsHandler(rt.deps.Jobs, maxUpload)
	adminH := handlers.NewAdminHandler(rt.deps.Usage)

	r.Group(func(r chi.Router) {
		r.Use(rt.rl.Limit)
		r.Use(rt.authn.Authenticate)

		r.With(auth.RequireScope(auth.ScopeTranscribe)).Post("/transcribe", transcriptionH.Legacy)

		r.Route("/v1", func(r chi.Router) {
			r.Route("/audio/transcriptions", func(r chi.Router) {
				r.With(auth.RequireScope(auth.ScopeTranscribe)).Post("/", transcriptionH.Create)
				r.With(auth.RequireScope(auth.ScopeTranscribe)).Post("/srt", transcriptionH.SRT)

				r.Route("/jobs", func(r chi.Router) {
					r.Use(auth.RequireScope(auth.ScopeJobs))
					r.Post("/", jobsH.Create)
					r.Get("/{id}", jobsH.Get)
					r.Get("/{id}/result", jobsH.Result)
				})
			})

			r.With(auth.RequireScope(auth.ScopeAdmin)).Get("/admin/usage", adminH.Usage)
		})
	})

	return r
}
