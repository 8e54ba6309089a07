package caja

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ClosingRecordedEvent is emitted after a close commits.
type ClosingRecordedEvent struct {
	ClosingID      int64
	BranchID       int64
	RegisterID     int64
	NewRegisterID  int64
	Difference     decimal.Decimal
	Classification Classification
	TransferAmount decimal.Decimal
	ClosedAt       time.Time
}

// PettyCashTransferredEvent is emitted after a register to petty-cash transfer commits.
type PettyCashTransferredEvent struct {
	BranchID   int64
	Origin     OriginKind
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
}

// EventHandler receives post-commit notifications. Failures are logged and
// never undo the committed operation.
type EventHandler interface {
	HandleClosingRecorded(ctx context.Context, evt ClosingRecordedEvent) error
	HandlePettyCashTransferred(ctx context.Context, evt PettyCashTransferredEvent) error
}

// Drift reports a petty-cash account whose stored balance disagrees with the
// signed sum of its movements.
type Drift struct {
	PettyCashID int64
	BranchID    int64
	Stored      decimal.Decimal
	Computed    decimal.Decimal
}

// Delta is stored minus computed.
func (d Drift) Delta() decimal.Decimal {
	return d.Stored.Sub(d.Computed)
}
