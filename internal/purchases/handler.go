package purchases

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires purchase endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     shared.PermissionGuard
	validator *validator.Validate
}

// NewHandler builds the purchase handler.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermPurchasesEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Post("/", h.receive)
		r.Post("/{id}/items", h.addItem)
		r.Post("/suggested", h.suggest)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermPurchasesApprove))
		r.Post("/{id}/approve", h.approve)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	pagination := shared.NewPagination(page, perPage, 0)
	filter := ListFilter{Limit: pagination.PerPage, Offset: pagination.Offset()}
	var err error
	if filter.SupplierID, err = httpx.OptionalInt64Query(r, "supplier_id"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if raw := r.URL.Query().Get("draft"); raw != "" {
		draft, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid draft flag")
			return
		}
		filter.Draft = &draft
	}
	purchases, total, err := h.service.ListPurchases(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if purchases == nil {
		purchases = []Purchase{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.ActorID = actor.ID
	result, err := h.service.ReceivePurchase(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input ItemInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input ApproveInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input.ActorID = actor.ID
	result, err := h.service.Approve(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	drafts, err := h.service.GenerateSuggestedOrders(r.Context(), actor.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if drafts == nil {
		drafts = []Purchase{}
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchases": drafts})
}
