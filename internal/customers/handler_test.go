package customers_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/testing/memstore"
)

type allowAll struct{}

func (allowAll) Require(string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func newRouter(store *memstore.Store) http.Handler {
	r := chi.NewRouter()
	h := customers.NewHandler(slog.New(slog.DiscardHandler), customers.NewService(store.Customers()), allowAll{})
	r.Route("/customers", h.MountRoutes)
	return r
}

func TestHandlerCreateAndShow(t *testing.T) {
	router := newRouter(memstore.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/customers/",
		strings.NewReader(`{"dni":"45678912","name":"Luis Quispe"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created customers.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/customers/"+strconv.FormatInt(created.ID, 10), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Luis Quispe")
}

func TestHandlerCreateValidatesDNI(t *testing.T) {
	router := newRouter(memstore.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/customers/",
		strings.NewReader(`{"dni":"12AB","name":"Luis"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestHandlerCreateNameOptionalWithDNI(t *testing.T) {
	router := newRouter(memstore.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"dni":"45678912"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created customers.Customer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "45678912", created.Name)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/customers/", strings.NewReader(`{"phone":"999"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerShowMissing(t *testing.T) {
	router := newRouter(memstore.New())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/customers/404", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
