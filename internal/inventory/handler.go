package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     shared.PermissionGuard
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermInventoryView))
		r.Get("/products/{id}", h.handleProduct)
		r.Get("/products/{id}/kardex", h.handleKardex)
		r.Get("/products/{id}/kardex/verify", h.handleVerify)
		r.Get("/low-stock", h.handleLowStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermInventoryAdjust))
		r.Post("/adjustments", h.handleAdjustment)
	})
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productView{Product: product, AvailableStock: product.AvailableStock(), LowStock: product.IsLowStock()})
}

func (h *Handler) handleKardex(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	filter := KardexFilter{ProductID: id}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		filter.From, err = time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		filter.To, err = time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		// Set to end of day
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	entries, err := h.service.GetKardex(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []StockMovement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "entries": entries})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	report, err := h.service.VerifyKardex(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListLowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{Product: p, AvailableStock: p.AvailableStock(), LowStock: true})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": views})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.ActorID = actor.ID
	movement, err := h.service.PostAdjustment(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

type productView struct {
	Product
	AvailableStock int  `json:"available_stock"`
	LowStock       bool `json:"low_stock"`
}
