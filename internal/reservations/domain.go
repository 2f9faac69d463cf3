package reservations

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status enumerates reservation states. FULFILLED and CANCELED are terminal.
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusFulfilled Status = "FULFILLED"
	StatusCanceled  Status = "CANCELED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReserved, StatusFulfilled, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCanceled
}

// Reservation holds units of a product for an optional customer.
type Reservation struct {
	ID         int64      `json:"id"`
	ProductID  int64      `json:"product_id"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	Quantity   int        `json:"quantity"`
	Status     Status     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedBy  int64      `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Contribution is the amount this reservation adds to the product's reserved_stock.
func (r Reservation) Contribution() int {
	if r.Status == StatusReserved {
		return r.Quantity
	}
	return 0
}

// Expired reports whether a RESERVED hold passed its expiry at now.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == StatusReserved && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// ReserveInput creates a reservation.
type ReserveInput struct {
	ProductID  int64      `json:"product_id" validate:"required,gt=0"`
	CustomerID *int64     `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Quantity   int        `json:"quantity" validate:"required,gt=0"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty" validate:"max=500"`
	ActorID    int64      `json:"-"`
}

// UpdateInput changes quantity and/or status. Nil fields keep their value.
type UpdateInput struct {
	Quantity *int    `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Status   *Status `json:"status,omitempty"`
	ActorID  int64   `json:"-"`
}

// ListFilter narrows active reservation listings.
type ListFilter struct {
	CustomerID *int64
	ProductID  *int64
}

var (
	// ErrNotFound indicates the reservation does not exist.
	ErrNotFound = fmt.Errorf("reservations: reservation %w", shared.ErrNotFound)
	// ErrInvalidState indicates a transition out of a terminal state.
	ErrInvalidState = fmt.Errorf("reservations: reservation is closed: %w", shared.ErrConflict)
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = fmt.Errorf("reservations: invalid status: %w", shared.ErrValidation)
	// ErrCustomerNotFound indicates the referenced customer does not exist.
	ErrCustomerNotFound = fmt.Errorf("reservations: customer %w", shared.ErrNotFound)
	// ErrExpiryInPast indicates an expiry that is already due.
	ErrExpiryInPast = fmt.Errorf("reservations: expiry must be in the future: %w", shared.ErrValidation)
)
