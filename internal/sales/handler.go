package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     shared.PermissionGuard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermSalesCreate))
		r.Post("/", h.createSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermSalesView))
		r.Get("/", h.listSales)
		r.Get("/{code}", h.showSale)
	})
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	key, err := shared.ParseIdempotencyKey(r.Header.Get("Idempotency-Key"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input CreateSaleInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.SellerID = actor.ID
	input.IdempotencyKey = key

	result, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sales/"+result.Sale.Code)
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSale(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	pagination := shared.NewPagination(page, perPage, 0)
	filter := ListFilter{Limit: pagination.PerPage, Offset: pagination.Offset()}

	q := r.URL.Query()
	var err error
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	if filter.CustomerID, err = httpx.OptionalInt64Query(r, "customer_id"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if filter.SellerID, err = httpx.OptionalInt64Query(r, "seller_id"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	sales, total, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if sales == nil {
		sales = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}
