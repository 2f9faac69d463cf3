package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Renderer turns HTML into PDF bytes.
type Renderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// SaleSource resolves settled sales by code.
type SaleSource interface {
	GetSale(ctx context.Context, code string) (sales.Sale, error)
}

// LowStockSource lists products that need replenishing.
type LowStockSource interface {
	ListLowStock(ctx context.Context) ([]inventory.Product, error)
}

// Handler serves receipts, share messages and stock alerts.
type Handler struct {
	logger    *slog.Logger
	renderer  Renderer
	sales     SaleSource
	stock     LowStockSource
	messages  *Messages
	templates TemplateWriter
	guard     shared.PermissionGuard
	storeName string
	validator *validator.Validate
}

// HandlerConfig groups Handler collaborators.
type HandlerConfig struct {
	Logger    *slog.Logger
	Renderer  Renderer
	Sales     SaleSource
	Stock     LowStockSource
	Messages  *Messages
	Templates TemplateWriter
	Guard     shared.PermissionGuard
	StoreName string
}

// NewHandler creates a report handler.
func NewHandler(cfg HandlerConfig) *Handler {
	messages := cfg.Messages
	if messages == nil {
		messages = NewMessages(nil)
	}
	return &Handler{
		logger:    cfg.Logger,
		renderer:  cfg.Renderer,
		sales:     cfg.Sales,
		stock:     cfg.Stock,
		messages:  messages,
		templates: cfg.Templates,
		guard:     cfg.Guard,
		storeName: cfg.StoreName,
		validator: validator.New(),
	}
}

// MountSaleRoutes registers document routes below the sales prefix.
func (h *Handler) MountSaleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermSalesView))
		r.Get("/{code}/receipt.pdf", h.receipt)
		r.Get("/{code}/message", h.saleMessage)
	})
}

// MountInventoryRoutes registers alert routes below the inventory prefix.
func (h *Handler) MountInventoryRoutes(r chi.Router) {
	r.With(h.guard.Require(shared.PermInventoryView)).Get("/low-stock/alerts", h.stockAlerts)
}

// MountTemplateRoutes registers message template settings.
func (h *Handler) MountTemplateRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermSettingsEdit))
		r.Get("/", h.listTemplates)
		r.Put("/{code}", h.saveTemplate)
	})
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	html, err := ReceiptHTML(h.storeName, sale)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), html)
	if err != nil {
		if errors.Is(err, ErrRendererUnavailable) {
			h.logger.Error("render receipt", slog.String("code", sale.Code), slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "receipt renderer unavailable")
			return
		}
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+sale.Code+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) saleMessage(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	text, err := h.messages.SaleMessage(r.Context(), sale)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"code": sale.Code, "message": text})
}

type stockAlert struct {
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (h *Handler) stockAlerts(w http.ResponseWriter, r *http.Request) {
	products, err := h.stock.ListLowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	alerts := make([]stockAlert, 0, len(products))
	for _, p := range products {
		text, ok, err := h.messages.StockAlert(r.Context(), p)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		if ok {
			alerts = append(alerts, stockAlert{ProductID: p.ID, Code: p.Code, Message: text})
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.messages.Templates(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": templates})
}

type saveTemplateRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func (h *Handler) saveTemplate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, ok := DefaultTemplates[code]; !ok {
		httpx.RespondError(w, r, h.logger, ErrUnknownTemplate)
		return
	}
	if h.templates == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "template storage not configured")
		return
	}
	var req saveTemplateRequest
	if err := httpx.DecodeJSON(r, h.validator, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.templates.SaveTemplate(r.Context(), code, req.Body); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		h.logger.Info("message template saved", slog.String("code", code), slog.Int64("actor_id", actor.ID))
	}
	httpx.JSON(w, http.StatusOK, MessageTemplate{Code: code, Body: req.Body, Customised: req.Body != DefaultTemplates[code]})
}
