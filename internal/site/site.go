// Package site serves the public dealership pages, the back office, the JSON
// API and the live feed endpoint.
package site

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/middleware"
	"github.com/showroom-auto/showroom/internal/web/profiling"
	"github.com/showroom-auto/showroom/internal/web/query"
	"github.com/showroom-auto/showroom/internal/web/ratelimit"
	"github.com/showroom-auto/showroom/internal/web/request"
	"github.com/showroom-auto/showroom/internal/web/session"
	"github.com/showroom-auto/showroom/internal/web/static"
	"github.com/showroom-auto/showroom/internal/web/websocket"
)

// Config holds site configuration
type Config struct {
	// BaseURL is the absolute origin used in the sitemap
	BaseURL string

	// PrettyHTML re-indents rendered pages
	PrettyHTML bool

	// Listing bounds explorer and API page sizes
	Listing query.Config

	// AllowedOrigins lists extra origins for the API and the live feed
	AllowedOrigins []string

	// TrustForwarded honours X-Forwarded-For when resolving client addresses
	TrustForwarded bool

	// AdminPageSize is the page size of the admin car list and activity log
	AdminPageSize int

	// Profiling mounts pprof and runtime stats under /admin/debug
	Profiling bool
}

// DefaultConfig returns default site configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080",
		Listing:       query.DefaultConfig(),
		AdminPageSize: 25,
	}
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the site handlers call into
type Deps struct {
	Inventory     *inventory.Service
	Authenticator *auth.Authenticator
	Tokens        *auth.TokenService
	Sessions      *session.Manager
	Limiter       ratelimit.Limiter
	Uploader      *blob.Uploader
	Hub           *websocket.Hub
	Checks        map[string]HealthCheck
	Logger        *zap.Logger
}

// Site holds the parsed views and the wired dependencies
type Site struct {
	Deps
	config Config
	views  *views
	assets *static.FileServer
	parser *request.Parser
	feed   *websocket.Handler
	logger *zap.Logger
}

// New parses the templates, loads the assets and wires the live feed handler
func New(config Config, deps Deps) (*Site, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Uploader == nil {
		deps.Uploader = blob.NewUploader(blob.DefaultUploadConfig())
	}
	if config.Listing.DefaultLimit <= 0 || config.Listing.MaxLimit <= 0 {
		config.Listing = query.DefaultConfig()
	}
	if config.AdminPageSize <= 0 {
		config.AdminPageSize = DefaultConfig().AdminPageSize
	}

	assets, err := static.NewFileServer(assetFS(), static.DefaultFileServerConfig())
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}

	s := &Site{
		Deps:   deps,
		config: config,
		assets: assets,
		parser: request.NewParser(),
		logger: deps.Logger.Named("site"),
	}

	s.views, err = parseViews(s.funcs(), config.PrettyHTML)
	if err != nil {
		return nil, err
	}

	if deps.Hub != nil {
		wsConfig := websocket.DefaultConfig()
		wsConfig.AllowedOrigins = config.AllowedOrigins
		s.feed = websocket.NewHandler(deps.Hub, wsConfig, func(ctx context.Context) (any, error) {
			return deps.Inventory.Snapshot(ctx)
		})
	}
	return s, nil
}

// Handler returns the complete route tree
func (s *Site) Handler() http.Handler {
	r := chi.NewRouter()

	base := middleware.NewChain(
		middleware.RequestID(),
		middleware.RealIP(middleware.RealIPConfig{TrustForwarded: s.config.TrustForwarded}),
		middleware.Logging(s.logger),
		middleware.RecoveryWithConfig(middleware.RecoveryConfig{
			Logger:           s.logger,
			EnableStackTrace: true,
			ResponseHandler:  s.renderPanic,
		}),
		middleware.SecureHeaders(),
		middleware.Conditional(
			middleware.Not(middleware.Or(middleware.IsWebSocket, middleware.PathPrefix("/media/"))),
			middleware.Compression(),
		),
	)

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	r.Get("/healthz", s.healthz)
	r.Handle("/static/*", s.assets)
	r.Get("/media/*", s.media)
	r.Get("/sitemap.xml", s.sitemap)
	r.Get("/robots.txt", s.robots)

	r.Route("/api/v1", s.apiRoutes)

	r.Group(func(r chi.Router) {
		r.Use(s.limitBody, s.Sessions.Middleware, s.Sessions.CSRF(session.CSRFConfig{ErrorHandler: s.csrfFailed}))
		s.publicRoutes(r)
		r.Route("/admin", s.adminRoutes)
	})

	return base.Then(r)
}

func (s *Site) publicRoutes(r chi.Router) {
	r.Get("/", s.home)
	r.Get("/cars", s.explore)
	r.Get("/cars/{id}", s.carDetail)
	r.Get("/about", s.about)
	r.Get("/contact", s.contact)
	r.With(s.rateLimit("contact")).Post("/contact", s.submitContact)
}

func (s *Site) adminRoutes(r chi.Router) {
	r.Get("/login", s.loginForm)
	r.With(s.rateLimit("login")).Post("/login", s.login)
	r.Post("/logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdminPage)

		r.Get("/", s.dashboard)
		r.Get("/cars", s.adminCars)
		r.Get("/cars/new", s.newCar)
		r.Post("/cars", s.createCar)
		r.Get("/cars/{id}/edit", s.editCar)
		r.Post("/cars/{id}", s.updateCar)
		r.Post("/cars/{id}/delete", s.deleteCar)
		r.Post("/cars/{id}/images", s.uploadImage)
		r.Post("/cars/{id}/images/{imageID}/delete", s.deleteImage)
		r.Get("/activity", s.activityLog)
		r.Get("/settings", s.settingsForm)
		r.Post("/settings", s.saveSettings)
		r.Get("/inquiries", s.inquiries)
		r.Post("/inquiries/{id}/handled", s.markInquiryHandled)
		if s.feed != nil {
			r.Get("/feed", s.feed.ServeHTTP)
		}
		if s.config.Profiling {
			r.Mount("/debug", profiling.Handler(profiling.DefaultConfig()))
		}
	})
}

func (s *Site) rateLimit(scope string) func(http.Handler) http.Handler {
	if s.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	config := middleware.DefaultRateLimitConfig(s.Limiter)
	config.Scope = scope
	config.Logger = s.logger
	return middleware.RateLimitWithConfig(config)
}

func (s *Site) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.Checks))
	for name, check := range s.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Site) robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "User-agent: *\nDisallow: /admin/\nDisallow: /api/\nSitemap: %s/sitemap.xml\n", s.config.BaseURL)
}
