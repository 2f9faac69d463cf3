package customers

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Customer struct {
	ID        int64     `json:"id"`
	DNI       *string   `json:"dni,omitempty"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound  = fmt.Errorf("customers: customer %w", shared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("customers: customer already exists: %w", shared.ErrConflict)
	ErrNameEmpty = fmt.Errorf("customers: name required: %w", shared.ErrValidation)
)

var folder = cases.Fold()

// NameKey normalizes a display name for identity matching: NFKC, case folded and with
// whitespace runs collapsed, so "  Ana  PÉREZ" and "ana pérez" resolve to the same customer.
func NameKey(name string) string {
	folded := folder.String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}
