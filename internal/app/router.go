package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-pos/internal/audit"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/report"
)

// HealthCheck probes a dependency for the deep health endpoint.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	AuthMiddleware      auth.Middleware
	AuthHandler         *auth.Handler
	CatalogHandler      *catalog.Handler
	CustomersHandler    *customers.Handler
	InventoryHandler    *inventory.Handler
	ReservationsHandler *reservations.Handler
	SalesHandler        *sales.Handler
	PurchasesHandler    *purchases.Handler
	ReportsHandler      *reports.Handler
	DocumentsHandler    *report.Handler
	AuditHandler        *audit.Handler
	UsersHandler        *users.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
	HealthChecks        map[string]HealthCheck
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)

			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(r)
			}
			if params.CustomersHandler != nil {
				r.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			r.Route("/inventory", func(r chi.Router) {
				params.InventoryHandler.MountRoutes(r)
				if params.DocumentsHandler != nil {
					params.DocumentsHandler.MountInventoryRoutes(r)
				}
			})
			r.Route("/reservations", params.ReservationsHandler.MountRoutes)
			r.Route("/sales", func(r chi.Router) {
				params.SalesHandler.MountRoutes(r)
				if params.DocumentsHandler != nil {
					params.DocumentsHandler.MountSaleRoutes(r)
				}
			})
			r.Route("/purchases", params.PurchasesHandler.MountRoutes)
			if params.ReportsHandler != nil {
				r.Route("/reports", params.ReportsHandler.MountRoutes)
			}
			if params.DocumentsHandler != nil {
				r.Route("/settings/messages", params.DocumentsHandler.MountTemplateRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "method not allowed")
	})

	return r
}

// healthHandler reports liveness, and with ?deep=1 probes every check.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deep") != "1" || len(checks) == 0 {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
