package api

import (
	"net/http"

	"github.com/bcnelson/firewall-policy-manager/internal/api/handler"
	"github.com/bcnelson/firewall-policy-manager/internal/api/middleware"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures NewRouter.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(svc *service.Services, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("api")

	r := chi.NewRouter()

	// Global middleware. Logging wraps Recoverer so panics are logged and
	// counted as 500s.
	r.Use(middleware.Logging(logger, opts.Metrics))
	r.Use(chimw.Recoverer)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(svc.APIKeys, logger))

		firewallHandler := handler.NewFirewallHandler(svc, logger)
		policyHandler := handler.NewPolicyHandler(svc, logger)
		ruleHandler := handler.NewRuleHandler(svc, logger)
		keyHandler := handler.NewAPIKeyHandler(svc, logger)

		// API keys
		r.Post("/api-keys", keyHandler.Create)
		r.Get("/api-keys", keyHandler.List)
		r.Delete("/api-keys/{id}", keyHandler.Delete)

		// Firewalls
		r.Post("/firewalls", firewallHandler.Create)
		r.Get("/firewalls", firewallHandler.List)
		r.Route("/firewalls/{id}", func(r chi.Router) {
			r.Get("/", firewallHandler.Get)
			r.Delete("/", firewallHandler.Delete)

			r.Post("/filtering-policies", policyHandler.Create)
			r.Get("/filtering-policies", policyHandler.List)
		})

		// Filtering policies
		r.Route("/filtering-policies/{id}", func(r chi.Router) {
			r.Get("/", policyHandler.Get)
			r.Delete("/", policyHandler.Delete)

			r.Post("/rules", ruleHandler.Create)
			r.Get("/rules", ruleHandler.List)
		})

		// Rules
		r.Get("/rules/{id}", ruleHandler.Get)
		r.Delete("/rules/{id}", ruleHandler.Delete)
	})

	return r
}
