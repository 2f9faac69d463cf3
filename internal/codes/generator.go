// Package codes generates the human readable business identifiers used on receipts,
// purchase orders and product labels.
package codes

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Kind selects the code family.
type Kind string

const (
	// KindSale produces V-YYYYMMDD-XXXX.
	KindSale Kind = "sale"
	// KindPurchase produces C-YYYYMMDD-XXXX.
	KindPurchase Kind = "purchase"
	// KindProduct produces P-XXXXXX.
	KindProduct Kind = "product"
)

// DefaultMaxAttempts bounds the retry loop. With four random digits per day a store would need
// thousands of sales on one date before collisions become likely.
const DefaultMaxAttempts = 50

var (
	// ErrExhausted indicates no free code was found within the attempt budget.
	ErrExhausted = errors.New("codes: no unused code found")
	// ErrUnknownKind indicates an unsupported code family.
	ErrUnknownKind = errors.New("codes: unknown kind")
)

// Checker reports whether a code is already assigned. Transactional repositories implement it
// so the check sees rows written earlier in the same transaction.
type Checker interface {
	CodeExists(ctx context.Context, kind Kind, code string) (bool, error)
}

// Generator builds candidate codes and retries until an unused one is found.
type Generator struct {
	MaxAttempts int
	clock       func() time.Time
	digit       func() int
}

// NewGenerator constructs a Generator using the wall clock and math/rand.
func NewGenerator() *Generator {
	return &Generator{
		MaxAttempts: DefaultMaxAttempts,
		clock:       time.Now,
		digit:       func() int { return rand.IntN(10) },
	}
}

// In makes dated codes follow loc's calendar day.
func (g *Generator) In(loc *time.Location) *Generator {
	g.clock = func() time.Time { return time.Now().In(loc) }
	return g
}

// Next returns a code of the requested kind that the checker does not know about.
func (g *Generator) Next(ctx context.Context, kind Kind, checker Checker) (string, error) {
	if checker == nil {
		return "", errors.New("codes: checker required")
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := g.candidate(kind)
		if err != nil {
			return "", err
		}
		exists, err := checker.CodeExists(ctx, kind, code)
		if err != nil {
			return "", fmt.Errorf("codes: check %s: %w", kind, err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrExhausted, kind, attempts)
}

func (g *Generator) candidate(kind Kind) (string, error) {
	now := g.now()
	switch kind {
	case KindSale:
		return Format("V", now, g.digits(4)), nil
	case KindPurchase:
		return Format("C", now, g.digits(4)), nil
	case KindProduct:
		return "P-" + g.digits(6), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Format renders a dated code such as V-20240131-0042.
func Format(prefix string, at time.Time, digits string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), digits)
}

// Valid reports whether code has the shape produced for kind.
func Valid(kind Kind, code string) bool {
	switch kind {
	case KindSale, KindPurchase:
		prefix := "V-"
		if kind == KindPurchase {
			prefix = "C-"
		}
		if len(code) != len("V-20060102-0000") || !strings.HasPrefix(code, prefix) || code[10] != '-' {
			return false
		}
		if _, err := time.Parse("20060102", code[2:10]); err != nil {
			return false
		}
		return allDigits(code[11:])
	case KindProduct:
		return len(code) == 8 && strings.HasPrefix(code, "P-") && allDigits(code[2:])
	default:
		return false
	}
}

func (g *Generator) digits(n int) string {
	digit := g.digit
	if digit == nil {
		digit = func() int { return rand.IntN(10) }
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + digit()))
	}
	return b.String()
}

func (g *Generator) now() time.Time {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
