package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller-erp/internal/caja"
	jobmetrics "github.com/taller-erp/taller-erp/internal/jobs"
)

type stubVerifier struct {
	branch int64
	drifts []caja.Drift
	err    error
}

func (s *stubVerifier) VerifyPettyCash(_ context.Context, branchID int64) ([]caja.Drift, error) {
	s.branch = branchID
	return s.drifts, s.err
}

func TestPettyCashIntegrityHandlesPayload(t *testing.T) {
	verifier := &stubVerifier{drifts: []caja.Drift{
		{PettyCashID: 1, BranchID: 4, Stored: decimal.NewFromInt(20), Computed: decimal.NewFromInt(15)},
	}}
	job := NewPettyCashIntegrityJob(verifier, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewPettyCashIntegrityTask(4)
	require.NoError(t, err)
	require.Equal(t, TaskPettyCashIntegrity, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.EqualValues(t, 4, verifier.branch)

	verifier.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskPettyCashIntegrity, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type stubPurger struct {
	retention time.Duration
	deleted   int64
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return s.deleted, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &stubPurger{deleted: 3}
	job := NewIdempotencyCleanupJob(purger, 48*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 2*time.Hour, purger.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 48*time.Hour, purger.retention)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) (*httptest.ResponseRecorder, map[string]any) {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		var body map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &body)
		return rr, body
	}

	rr, body := serve(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1, Archived: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 2, body["pending"])
	require.EqualValues(t, 2, body["failed"])

	rr, _ = serve(stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr, body = serve(nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, body["success"])
}
