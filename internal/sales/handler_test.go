package sales_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// sellerGuard authenticates every request as the test seller.
type sellerGuard struct{}

func (sellerGuard) Require(string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: sellerID, Username: "caja1", Role: shared.RoleSeller})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	h := sales.NewHandler(slog.New(slog.DiscardHandler), f.svc, sellerGuard{})
	r.Route("/sales", h.MountRoutes)
	return r
}

func TestHandlerCreateSale(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 5, "4.00")
	router := newRouter(f)

	body := fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":2,"unit_price":"4.00"}],"payment_method":"card"}`, p.ID)
	req := httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.NewString())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result sales.SaleResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, "/api/v1/sales/"+result.Sale.Code, rr.Header().Get("Location"))
	require.Equal(t, int64(sellerID), result.Sale.SellerID)
	require.Equal(t, "9.44", result.Sale.Total.StringFixed(2))
	require.Equal(t, 3, f.store.Product(p.ID).Stock)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales/"+result.Sale.Code, nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerInsufficientStockProblem(t *testing.T) {
	f := newFixture(t)
	p := f.product("P-000001", 1, "4.00")
	router := newRouter(f)

	body := fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":3,"unit_price":"4.00"}]}`, p.ID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "insufficient_stock", problem["kind"])
	require.EqualValues(t, 1, problem["allowed"])
}

func TestHandlerRejectsBadIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/sales/", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Idempotency-Key", "not-a-uuid")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUnknownSaleCode(t *testing.T) {
	router := newRouter(newFixture(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales/V-20240101-9999", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
