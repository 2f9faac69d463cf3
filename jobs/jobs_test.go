package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/purchases"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
)

type fakeExpirer struct {
	at      time.Time
	expired int
	err     error
}

func (f *fakeExpirer) ExpireDue(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return f.expired, f.err
}

type fakeSuggester struct{ actorID int64 }

func (f *fakeSuggester) GenerateSuggestedOrders(_ context.Context, actorID int64) ([]purchases.Purchase, error) {
	f.actorID = actorID
	return []purchases.Purchase{{Code: "C-20240315-0001", SupplierID: 3, Total: decimal.RequireFromString("27.90")}}, nil
}

type fakeCleaner struct{ olderThan time.Duration }

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 4, nil
}

type fakeDashboard struct{ calls int }

func (f *fakeDashboard) Dashboard(context.Context) (reports.Dashboard, error) {
	f.calls++
	return reports.Dashboard{LowStockCount: 2}, nil
}

func testBase(t *testing.T) (Base, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	fixed := time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC)
	return Base{
		Logger:  slog.New(slog.DiscardHandler),
		Metrics: jobmetrics.NewMetrics(reg),
		clock:   func() time.Time { return fixed },
	}, reg
}

func mustTask(t *testing.T, name string, payload Payload) *asynq.Task {
	t.Helper()
	task, err := NewTask(name, payload)
	require.NoError(t, err)
	return task
}

func TestNewTaskAssignsRequestID(t *testing.T) {
	task := mustTask(t, TaskReservationsExpire, Payload{})
	var payload Payload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Len(t, payload.RequestID, 36)

	_, err := NewTask("ledger:rebuild", Payload{})
	require.Error(t, err)
	_, err = NewTask(TaskPurchasesSuggest, Payload{})
	require.Error(t, err)
}

func TestExpireReservationsJob(t *testing.T) {
	base, reg := testBase(t)
	expirer := &fakeExpirer{expired: 3}
	job := NewExpireReservationsJob(expirer, base)

	require.NoError(t, job.Handle(context.Background(), mustTask(t, TaskReservationsExpire, Payload{})))
	require.Equal(t, base.now(), expirer.at)

	count, err := testutil.GatherAndCount(reg, "odyssey_job_processed_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExpireReservationsJobRecordsFailure(t *testing.T) {
	base, reg := testBase(t)
	job := NewExpireReservationsJob(&fakeExpirer{err: errors.New("db down")}, base)

	require.Error(t, job.Handle(context.Background(), mustTask(t, TaskReservationsExpire, Payload{})))
	count, err := testutil.GatherAndCount(reg, "odyssey_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSuggestPurchasesJob(t *testing.T) {
	base, _ := testBase(t)
	suggester := &fakeSuggester{}
	job := NewSuggestPurchasesJob(suggester, base)

	require.NoError(t, job.Handle(context.Background(), mustTask(t, TaskPurchasesSuggest, Payload{ActorID: 7})))
	require.Equal(t, int64(7), suggester.actorID)

	err := job.Handle(context.Background(), asynq.NewTask(TaskPurchasesSuggest, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCleanupIdempotencyJobDefaultsRetention(t *testing.T) {
	base, _ := testBase(t)
	cleaner := &fakeCleaner{}
	job := NewCleanupIdempotencyJob(cleaner, base)

	require.NoError(t, job.Handle(context.Background(), mustTask(t, TaskIdempotencyCleanup, Payload{})))
	require.Equal(t, DefaultIdempotencyRetention, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), mustTask(t, TaskIdempotencyCleanup, Payload{Retention: time.Hour})))
	require.Equal(t, time.Hour, cleaner.olderThan)
}

func TestWarmupReportsJob(t *testing.T) {
	base, _ := testBase(t)
	source := &fakeDashboard{}
	require.NoError(t, NewWarmupReportsJob(source, base).Handle(context.Background(), asynq.NewTask(TaskReportsWarmup, nil)))
	require.Equal(t, 1, source.calls)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	base, _ := testBase(t)
	job := NewCleanupIdempotencyJob(&fakeCleaner{}, base)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(inspector, slog.New(slog.DiscardHandler)).MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"scheduled":0,"retry":1,"archived":0}`, rr.Body.String())

	rr = serve(fakeInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
