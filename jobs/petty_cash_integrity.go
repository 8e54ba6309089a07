package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taller-erp/taller-erp/internal/caja"
	jobmetrics "github.com/taller-erp/taller-erp/internal/jobs"
)

// PettyCashVerifier reports petty-cash accounts out of balance.
type PettyCashVerifier interface {
	VerifyPettyCash(ctx context.Context, branchID int64) ([]caja.Drift, error)
}

// PettyCashIntegrityJob checks that every petty-cash balance equals the signed
// sum of its movements.
type PettyCashIntegrityJob struct {
	Verifier PettyCashVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPettyCashIntegrityJob initialises the integrity handler.
func NewPettyCashIntegrityJob(verifier PettyCashVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *PettyCashIntegrityJob {
	return &PettyCashIntegrityJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes the scan. Drift is reported, never corrected.
func (j *PettyCashIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errors.New("petty cash integrity: handler not configured")
	}
	var payload PettyCashIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskPettyCashIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("branch_id", payload.BranchID))
	logger.Info("starting petty cash integrity scan")

	drifts, err := j.Verifier.VerifyPettyCash(ctx, payload.BranchID)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	perBranch := make(map[int64]int)
	for _, d := range drifts {
		perBranch[d.BranchID]++
	}
	for branchID, count := range perBranch {
		j.metrics().AddDrift(branchID, count)
	}

	logger.Info("completed petty cash integrity scan",
		slog.Int("drifted", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *PettyCashIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPettyCashIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskPettyCashIntegrity))
}

func (j *PettyCashIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
