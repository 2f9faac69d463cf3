package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes the read-only report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   shared.PermissionGuard
}

// NewHandler constructs reports handler.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermReportsView))
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/sales", h.handleSales)
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboard)
}

// handleSales serves ?from=YYYY-MM-DD&to=YYYY-MM-DD&granularity=day|month. Both dates are
// inclusive and default to the last 30 days.
func (h *Handler) handleSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.service.loc
	today := time.Now().In(loc)
	filter := SalesReportFilter{
		From:        time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -29),
		To:          time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1),
		Granularity: Granularity(q.Get("granularity")),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	report, err := h.service.SalesReport(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
