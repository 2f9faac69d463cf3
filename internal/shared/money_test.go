package shared_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestValidAmount(t *testing.T) {
	cases := map[string]bool{
		"0":      true,
		"12":     true,
		"12.5":   true,
		"12.50":  true,
		"9.99":   true,
		"9.999":  false,
		"0.005":  false,
		"-1":     false,
		"-0.01":  false,
		"1200.0": true,
	}
	for in, want := range cases {
		require.Equal(t, want, shared.ValidAmount(decimal.RequireFromString(in)), in)
	}
}
