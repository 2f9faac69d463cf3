package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/audit"
	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reservations"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-pos/internal/users"
)

type noUsers struct{}

func (noUsers) FindByUsername(context.Context, string) (*auth.User, error) {
	return nil, shared.ErrNotFound
}

func (noUsers) FindByID(context.Context, int64) (*auth.User, error) {
	return nil, shared.ErrNotFound
}

func (noUsers) UpsertUser(_ context.Context, u auth.User) (*auth.User, error) { return &u, nil }

func newRouter(t *testing.T, checks map[string]app.HealthCheck) (http.Handler, *auth.Tokens) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := memstore.New()
	tokens := auth.NewTokens("router-secret", time.Hour)
	mw := auth.Middleware{Tokens: tokens, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              &app.Config{RateLimitPerMinute: 1000},
		AuthMiddleware:      mw,
		AuthHandler:         auth.NewHandler(logger, auth.NewService(noUsers{}, tokens), mw),
		InventoryHandler:    inventory.NewHandler(logger, inventory.NewService(store.Inventory(), nil, nil, logger), mw),
		ReservationsHandler: reservations.NewHandler(logger, reservations.NewService(store.Reservations(), nil, nil, logger, 0), mw),
		SalesHandler:        sales.NewHandler(logger, sales.NewService(store.Sales(), nil, nil, sales.Options{}, logger), mw),
		PurchasesHandler:    purchases.NewHandler(logger, purchases.NewService(store.Purchases(), nil, nil, nil, nil, logger), mw),
		AuditHandler:        audit.NewHandler(logger, audit.NewService(nil), mw, time.UTC),
		UsersHandler:        users.NewHandler(logger, users.NewService(nil, nil, logger), mw),
		HealthChecks:        checks,
	})
	return router, tokens
}

func bearer(t *testing.T, tokens *auth.Tokens, role string) string {
	t.Helper()
	token, _, err := tokens.Issue(auth.User{ID: 1, Username: "tester", Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t, map[string]app.HealthCheck{
		"postgres":  func(context.Context) error { return nil },
		"gotenberg": func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz?deep=1", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"gotenberg":"connection refused"`)
	require.Contains(t, rr.Body.String(), `"postgres":"ok"`)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, tokens := newRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/low-stock", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/low-stock", nil)
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleSeller))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestSellerCannotApprovePurchases(t *testing.T) {
	router, tokens := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/1/approve", nil)
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleSeller))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router, _ := newRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestAdminOnlyRoutes(t *testing.T) {
	router, tokens := newRouter(t, nil)

	for _, target := range []string{"/api/v1/audit", "/api/v1/users"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", bearer(t, tokens, shared.RoleSeller))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code, target)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?from=bad", nil)
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
