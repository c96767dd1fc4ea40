package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"mobility/m/internal/auth"
	"mobility/m/internal/geodata"
	"mobility/m/internal/metrics"
	"mobility/m/internal/reviews"
	"mobility/m/internal/store"
	"mobility/m/internal/translate"
)

// GeodataFetcher runs an accessibility lookup for a bounding box.
type GeodataFetcher interface {
	Fetch(ctx context.Context, b geodata.BBox) (json.RawMessage, error)
}

// Options bundles the dependencies of Handler.
type Options struct {
	Auth       *auth.Service
	Sessions   *auth.Sessions
	Reviews    *reviews.Service
	Users      store.UserRepository
	Geodata    GeodataFetcher
	Translator translate.Translator
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer

	// Redis enables per-IP rate limiting of /api routes when set.
	Redis      *redis.Client
	RateLimit  int
	RateWindow time.Duration

	AdminUsername string
	CookieSecure  bool

	// TrustProxy takes the client IP from forwarding headers. Only set it
	// behind a proxy that overwrites them.
	TrustProxy  bool
	// CORSOrigins lists cross-origin callers allowed to send credentials.
	// Empty means same-origin only.
	CORSOrigins []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	auth          *auth.Service
	sessions      *auth.Sessions
	reviews       *reviews.Service
	users         store.UserRepository
	geodata       GeodataFetcher
	translator    translate.Translator
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	redis         *redis.Client
	rateLimit     int
	rateWindow    time.Duration
	adminUsername string
	cookieSecure  bool
	trustProxy    bool
	corsOrigins   []string
	pages         map[string]*template.Template
}

// New constructs a Handler.
func New(opts Options) *Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		auth:          opts.Auth,
		sessions:      opts.Sessions,
		reviews:       opts.Reviews,
		users:         opts.Users,
		geodata:       opts.Geodata,
		translator:    opts.Translator,
		metrics:       opts.Metrics,
		gatherer:      gatherer,
		redis:         opts.Redis,
		rateLimit:     opts.RateLimit,
		rateWindow:    opts.RateWindow,
		adminUsername: opts.AdminUsername,
		cookieSecure:  opts.CookieSecure,
		trustProxy:    opts.TrustProxy,
		corsOrigins:   opts.CORSOrigins,
		pages:         loadPages(),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Get("/", h.loginPage)
	r.Post("/", h.login)
	r.Post("/register", h.register)
	r.Get("/logout", h.logout)

	r.Get("/reviews", h.listReviews)
	r.Post("/reviews", h.postReview)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireSession)
		pr.Get("/dashboard", h.dashboard)
		pr.Get("/navigation", h.navigation)
		pr.With(h.requireAdmin).Get("/admin/data", h.adminData)
	})

	r.Route("/api", func(r chi.Router) {
		if h.redis != nil {
			r.Use(rateLimit(h.redis, h.rateLimit, h.rateWindow))
		}
		r.Get("/wheelmap", h.wheelmap)
		r.Post("/translate", h.translate)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
