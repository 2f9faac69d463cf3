package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func TestTestModeGuard(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "0")
	app.RefreshTestMode()
	require.False(t, app.InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "1")
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
}
