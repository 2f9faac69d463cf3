package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     shared.PermissionGuard
	validator *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service, guard shared.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermCatalogView))
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.showProduct)
		r.Get("/suppliers", h.listSuppliers)
		r.Get("/suppliers/{id}", h.showSupplier)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermCatalogEdit))
		r.Post("/products", h.createProduct)
		r.Patch("/products/{id}", h.updateProduct)
		r.Post("/suppliers", h.createSupplier)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	pagination := shared.NewPagination(page, perPage, 0)
	q := r.URL.Query()
	filter := ProductFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Limit:    pagination.PerPage,
		Offset:   pagination.Offset(),
	}
	var err error
	if filter.SupplierID, err = httpx.OptionalInt64Query(r, "supplier_id"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid active flag")
			return
		}
		filter.Active = &active
	}
	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []inventory.Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
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
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	product, err := h.service.CreateProduct(r.Context(), input, actor.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var input UpdateProductInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	product, err := h.service.UpdateProduct(r.Context(), id, input, actor.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if suppliers == nil {
		suppliers = []Supplier{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (h *Handler) showSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var input CreateSupplierInput
	if err := httpx.DecodeJSON(r, h.validator, &input); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	supplier, err := h.service.CreateSupplier(r.Context(), input, actor.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}
