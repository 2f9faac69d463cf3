package report

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

//go:embed templates/receipt.html
var templateFS embed.FS

// DefaultCustomer labels sales without a customer.
const DefaultCustomer = "Cliente General"

var receiptTemplate = template.Must(template.New("receipt.html").
	Funcs(template.FuncMap{"money": money}).
	ParseFS(templateFS, "templates/receipt.html"))

type receiptView struct {
	StoreName string
	Customer  string
	Sale      sales.Sale
}

// ReceiptHTML renders the printable receipt of a settled sale.
func ReceiptHTML(storeName string, sale sales.Sale) ([]byte, error) {
	var buf bytes.Buffer
	err := receiptTemplate.Execute(&buf, receiptView{
		StoreName: storeName,
		Customer:  customerLabel(sale),
		Sale:      sale,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func customerLabel(sale sales.Sale) string {
	if sale.CustomerName == "" {
		return DefaultCustomer
	}
	return sale.CustomerName
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
