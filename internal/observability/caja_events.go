package observability

import (
	"context"
	"log/slog"

	"github.com/taller-erp/taller-erp/internal/caja"
)

// IntegrityEnqueuer schedules a petty-cash integrity check for one branch.
type IntegrityEnqueuer interface {
	EnqueuePettyCashIntegrity(ctx context.Context, branchID int64) error
}

// CajaEvents turns committed caja events into metrics and follow-up jobs.
type CajaEvents struct {
	metrics *Metrics
	jobs    IntegrityEnqueuer
	logger  *slog.Logger
}

// NewCajaEvents wires the caja event sink. jobs may be nil.
func NewCajaEvents(metrics *Metrics, jobs IntegrityEnqueuer, logger *slog.Logger) *CajaEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &CajaEvents{metrics: metrics, jobs: jobs, logger: logger}
}

// HandleClosingRecorded implements caja.EventHandler.
func (e *CajaEvents) HandleClosingRecorded(ctx context.Context, evt caja.ClosingRecordedEvent) error {
	e.metrics.ObserveClosing(string(evt.Classification))
	if e.jobs == nil || !evt.TransferAmount.IsPositive() {
		return nil
	}
	if err := e.jobs.EnqueuePettyCashIntegrity(ctx, evt.BranchID); err != nil {
		e.logger.Warn("enqueue petty cash integrity", slog.Int64("branch_id", evt.BranchID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandlePettyCashTransferred implements caja.EventHandler.
func (e *CajaEvents) HandlePettyCashTransferred(_ context.Context, evt caja.PettyCashTransferredEvent) error {
	e.metrics.ObserveTransfer(string(evt.Origin))
	return nil
}

var _ caja.EventHandler = (*CajaEvents)(nil)
