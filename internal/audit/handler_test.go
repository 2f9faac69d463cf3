package audit

import (
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// roleGuard authenticates as the given role and enforces the role table.
type roleGuard struct{ role string }

func (g roleGuard) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !shared.HasPermission(g.role, perm) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{ID: 7, Username: "root", Role: g.role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(repo *fakeRepo, role string) (http.Handler, *Handler) {
	h := NewHandler(slog.New(slog.DiscardHandler), NewService(repo), roleGuard{role: role}, time.UTC)
	h.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r, h
}

func TestHandleTimelineDefaultsToLastWeek(t *testing.T) {
	repo := seededRepo(3)
	router, _ := newTestRouter(repo, shared.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 3)
	require.Equal(t, 1, body.Paging.Page)

	q := repo.queries[0]
	require.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), q.From)
	require.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), q.To)
}

func TestHandleTimelineFilters(t *testing.T) {
	repo := seededRepo(4)
	router, _ := newTestRouter(repo, shared.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/?from=2026-02-01&to=2026-02-28&actor=1&entity=sale&action=create&page_size=1", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	q := repo.queries[0]
	require.NotNil(t, q.ActorID)
	require.EqualValues(t, 1, *q.ActorID)
	require.Equal(t, "sale", q.Entity)
	require.Equal(t, "create", q.Action)
	require.Equal(t, 2, q.Limit)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), q.To)
}

func TestHandleTimelineRejectsBadRanges(t *testing.T) {
	router, _ := newTestRouter(seededRepo(1), shared.RoleAdmin)
	for _, target := range []string{
		"/audit/?from=2026-03-09&to=2026-03-01",
		"/audit/?from=2025-01-01&to=2026-03-01",
		"/audit/?from=yesterday",
		"/audit/?actor=abc",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandleTimelineForbiddenForSeller(t *testing.T) {
	router, _ := newTestRouter(seededRepo(1), shared.RoleSeller)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleExportCSV(t *testing.T) {
	repo := seededRepo(2)
	repo.rows[0].Actor = "root"
	repo.rows[0].Meta = map[string]any{"total": "12.00"}
	router, _ := newTestRouter(repo, shared.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2026-03-01&to=2026-03-02", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "audit-2026-03-01-2026-03-02.csv")

	records, err := csv.NewReader(strings.NewReader(rr.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "timestamp", records[0][0])
	require.Equal(t, "root", records[1][1])
	require.Equal(t, `{"total":"12.00"}`, records[1][5])
	require.Equal(t, "1", records[2][1])
}

func TestHandleExportRateLimited(t *testing.T) {
	router, _ := newTestRouter(seededRepo(1), shared.RoleAdmin)
	var last int
	for i := 0; i < rateLimit+1; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
		last = rr.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
