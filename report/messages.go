package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Message template codes.
const (
	TemplateSaleMessage   = "SALE_MESSAGE"
	TemplateOutOfStock    = "ALERT_OUT_OF_STOCK"
	TemplateLowStockAlert = "ALERT_LOW_STOCK"
)

// DefaultTemplates are the bodies seeded by provisioning and used whenever the
// store has not customised a template.
var DefaultTemplates = map[string]string{
	TemplateSaleMessage:   "Gracias por su compra\nVenta: {{code}}\nCliente: {{customer}}\nProductos:\n{{items}}\nTOTAL: S/ {{total}}",
	TemplateOutOfStock:    "Producto agotado\n\nNombre: {{name}}\nCódigo: {{code}}",
	TemplateLowStockAlert: "Producto por debajo del stock mínimo\n\nNombre: {{name}}\nCódigo: {{code}}\nStock: {{stock}}\nStock mínimo: {{min_stock}}",
}

// TemplateStore loads customised message bodies. A missing template returns
// an empty body and no error.
type TemplateStore interface {
	Template(ctx context.Context, code string) (string, error)
}

// TemplateWriter persists customised message bodies.
type TemplateWriter interface {
	SaveTemplate(ctx context.Context, code, body string) error
}

// ErrUnknownTemplate is returned for codes outside DefaultTemplates.
var ErrUnknownTemplate = fmt.Errorf("report: unknown message template: %w", shared.ErrNotFound)

// MessageTemplate is the effective body of a template code.
type MessageTemplate struct {
	Code       string `json:"code"`
	Body       string `json:"body"`
	Customised bool   `json:"customised"`
}

// TemplateRepository reads message_templates from Postgres.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Template returns the stored body for code.
func (r *TemplateRepository) Template(ctx context.Context, code string) (string, error) {
	var body string
	err := r.pool.QueryRow(ctx, `SELECT body FROM message_templates WHERE code = $1`, code).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", code, err)
	}
	return body, nil
}

// SaveTemplate upserts the body for code.
func (r *TemplateRepository) SaveTemplate(ctx context.Context, code, body string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO message_templates (code, body) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`, code, body)
	if err != nil {
		return fmt.Errorf("save template %s: %w", code, err)
	}
	return nil
}

// SeedDefaults inserts the default templates without touching customised ones.
func (r *TemplateRepository) SeedDefaults(ctx context.Context) error {
	batch := &pgx.Batch{}
	for code, body := range DefaultTemplates {
		batch.Queue(`INSERT INTO message_templates (code, body) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`, code, body)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Messages renders share messages and stock alerts from templates.
type Messages struct {
	store TemplateStore
}

// NewMessages constructs a renderer. store may be nil to always use defaults.
func NewMessages(store TemplateStore) *Messages {
	return &Messages{store: store}
}

func (m *Messages) body(ctx context.Context, code string) (string, error) {
	if m.store != nil {
		body, err := m.store.Template(ctx, code)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(body) != "" {
			return body, nil
		}
	}
	return DefaultTemplates[code], nil
}

// Templates lists every known template with its effective body, sorted by code.
func (m *Messages) Templates(ctx context.Context) ([]MessageTemplate, error) {
	codes := make([]string, 0, len(DefaultTemplates))
	for code := range DefaultTemplates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]MessageTemplate, 0, len(codes))
	for _, code := range codes {
		body, err := m.body(ctx, code)
		if err != nil {
			return nil, err
		}
		out = append(out, MessageTemplate{Code: code, Body: body, Customised: body != DefaultTemplates[code]})
	}
	return out, nil
}

// Render substitutes {{key}} placeholders. Unknown placeholders are left as is.
func Render(body string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// SaleMessage renders the text shared with the customer after a sale.
func (m *Messages) SaleMessage(ctx context.Context, sale sales.Sale) (string, error) {
	body, err := m.body(ctx, TemplateSaleMessage)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("- %s x%d = S/ %s", item.ProductName, item.Quantity, money(item.Subtotal)))
	}
	return Render(body, map[string]string{
		"code":     sale.Code,
		"customer": customerLabel(sale),
		"items":    strings.Join(lines, "\n"),
		"total":    money(sale.Total),
	}), nil
}

// StockAlert renders the alert for a product whose available stock is at or
// below its minimum. The second return is false when the product needs no alert.
func (m *Messages) StockAlert(ctx context.Context, p inventory.Product) (string, bool, error) {
	available := p.AvailableStock()
	var code string
	switch {
	case available == 0:
		code = TemplateOutOfStock
	case available <= p.MinStock:
		code = TemplateLowStockAlert
	default:
		return "", false, nil
	}
	body, err := m.body(ctx, code)
	if err != nil {
		return "", false, err
	}
	return Render(body, map[string]string{
		"name":      p.Name,
		"code":      p.Code,
		"stock":     strconv.Itoa(available),
		"min_stock": strconv.Itoa(p.MinStock),
	}), true, nil
}
