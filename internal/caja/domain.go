package caja

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taller-erp/taller-erp/internal/platform/httpx"
)

// RegisterState enumerates the lifecycle of a register session.
type RegisterState string

const (
	// RegisterOpen marks the single active register of a branch.
	RegisterOpen RegisterState = "ABIERTA"
	// RegisterClosed marks a register that went through a closing.
	RegisterClosed RegisterState = "CERRADA"
)

// MovementKind carries the direction of a ledger entry.
type MovementKind string

const (
	KindIngreso MovementKind = "INGRESO"
	KindEgreso  MovementKind = "EGRESO"
	KindInterno MovementKind = "INTERNO"
)

// Valid reports whether k is a known kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindIngreso, KindEgreso, KindInterno:
		return true
	}
	return false
}

// OriginKind names what produced a movement.
type OriginKind string

const (
	OriginOrderPayment  OriginKind = "ORDEN_PAGO"
	OriginClosing       OriginKind = "CIERRE"
	OriginPettyCash     OriginKind = "CAJA_CHICA"
	OriginWorkerPayment OriginKind = "PAGO_TRABAJADOR"
	OriginManual        OriginKind = "MANUAL"
	// OriginMainRegister is used on petty-cash movements fed by a manual transfer.
	OriginMainRegister OriginKind = "CAJA_PRINCIPAL"
)

// Valid reports whether o is a known register origin.
func (o OriginKind) Valid() bool {
	switch o {
	case OriginOrderPayment, OriginClosing, OriginPettyCash, OriginWorkerPayment, OriginManual:
		return true
	}
	return false
}

// Classification grades the difference found at closing.
type Classification string

const (
	ClassificationNormal   Classification = "NORMAL"
	ClassificationWarning  Classification = "ADVERTENCIA"
	ClassificationCritical Classification = "CRITICO"
)

const (
	defaultRegisterName  = "Caja Principal"
	defaultPettyCashName = "Caja Chica"
)

// Register is a branch-scoped cash-drawer session.
type Register struct {
	ID             int64
	BranchID       int64
	Name           string
	State          RegisterState
	OpeningBalance decimal.Decimal
	OpenedBy       int64
	OpenedByName   string
	OpenedAt       time.Time
	ClosedAt       *time.Time
	Sequence       int
}

// Movement is an append-only entry on a register.
type Movement struct {
	ID              int64
	RegisterID      int64
	UserID          int64
	UserName        string
	PaymentMethodID int64
	Kind            MovementKind
	Amount          decimal.Decimal
	OccurredAt      time.Time
	OriginKind      OriginKind
	OriginID        int64
	Concept         string
	Description     string
}

// Closing is the reconciliation record produced by a close.
type Closing struct {
	ID                 int64
	RegisterID         int64
	BranchID           int64
	RegisterName       string
	UserID             int64
	ClosedByName       string
	OpenedByName       string
	OpenedAt           time.Time
	ClosedAt           time.Time
	OpeningBalance     decimal.Decimal
	TheoreticalBalance decimal.Decimal
	CountedBalance     decimal.Decimal
	Difference         decimal.Decimal
	PettyCashAmount    decimal.Decimal
	NextOpeningBalance decimal.Decimal
	Classification     Classification
	Description        string
	TotalInvoiced      decimal.Decimal
}

// PeriodResult is counted cash minus the opening balance.
func (c Closing) PeriodResult() decimal.Decimal {
	return c.CountedBalance.Sub(c.OpeningBalance)
}

// PettyCash is the per-branch secondary balance.
type PettyCash struct {
	ID             int64
	BranchID       int64
	Name           string
	CurrentBalance decimal.Decimal
	UpdatedAt      time.Time
}

// PettyCashMovement is an append-only entry on a petty-cash account.
type PettyCashMovement struct {
	ID                 int64
	PettyCashID        int64
	UserID             int64
	UserName           string
	Kind               MovementKind
	Amount             decimal.Decimal
	OccurredAt         time.Time
	Description        string
	OriginKind         OriginKind
	OriginID           int64
	RegisterMovementID int64
}

// Signed returns the contribution of m to the petty-cash balance. INTERNO
// entries are always inbound transfers from the register.
func (m PettyCashMovement) Signed() decimal.Decimal {
	if m.Kind == KindEgreso {
		return m.Amount.Neg()
	}
	return m.Amount
}

// KindTotals aggregates register movements by direction.
type KindTotals struct {
	Ingresos decimal.Decimal
	Egresos  decimal.Decimal
}

// PaymentTotal is the sum of order payments of one payment method.
type PaymentTotal struct {
	MethodID   int64
	MethodCode string
	MethodName string
	IsCash     bool
	Total      decimal.Decimal
}

// PurchaseTotals sums the branch's supplier purchases since a register opened.
type PurchaseTotals struct {
	Cash decimal.Decimal
	Card decimal.Decimal
}

// Total is cash plus card purchases.
func (p PurchaseTotals) Total() decimal.Decimal {
	return p.Cash.Add(p.Card)
}

// maxMoney is the first value a NUMERIC(12,2) column cannot hold.
var maxMoney = decimal.New(1, 10)

// checkMoney rejects amounts the ledger columns would round or overflow.
func checkMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimals", ErrInvalidAmount, field)
	}
	if d.Abs().GreaterThanOrEqual(maxMoney) {
		return fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, field, Money(maxMoney.Sub(decimal.New(1, -2))))
	}
	return nil
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	Kind    MovementKind
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// CloseInput describes a close request. CountedBalance is required.
type CloseInput struct {
	BranchID           int64
	ActorID            int64
	CountedBalance     *decimal.Decimal
	PettyCashAmount    decimal.Decimal
	NextOpeningBalance *decimal.Decimal
	Description        string
	IdempotencyKey     string
}

// Validate checks the request before any transaction is opened.
func (in CloseInput) Validate() error {
	if in.BranchID <= 0 {
		return ErrBranchRequired
	}
	if in.CountedBalance == nil {
		return ErrCountedBalanceRequired
	}
	if in.CountedBalance.IsNegative() {
		return fmt.Errorf("%w: counted balance must be >= 0", ErrInvalidAmount)
	}
	if err := checkMoney("counted balance", *in.CountedBalance); err != nil {
		return err
	}
	if in.PettyCashAmount.IsNegative() {
		return fmt.Errorf("%w: petty cash amount must be >= 0", ErrInvalidAmount)
	}
	if err := checkMoney("petty cash amount", in.PettyCashAmount); err != nil {
		return err
	}
	if in.NextOpeningBalance != nil {
		if in.NextOpeningBalance.IsNegative() {
			return fmt.Errorf("%w: next opening balance must be >= 0", ErrInvalidAmount)
		}
		if err := checkMoney("next opening balance", *in.NextOpeningBalance); err != nil {
			return err
		}
	}
	return nil
}

// CloseResult summarises a completed close.
type CloseResult struct {
	Closing       Closing
	NewRegisterID int64
	Transfer      *TransferResult
}

// MovementInput describes a register movement.
type MovementInput struct {
	RegisterID      int64
	ActorID         int64
	PaymentMethodID int64
	Kind            MovementKind
	Amount          decimal.Decimal
	OriginKind      OriginKind
	OriginID        int64
	Concept         string
	Description     string
	IdempotencyKey  string
}

// Validate enforces positive cent amounts and known kinds.
func (in MovementInput) Validate() error {
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := checkMoney("amount", in.Amount); err != nil {
		return err
	}
	if in.OriginKind != "" && !in.OriginKind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, in.OriginKind)
	}
	if in.OriginID < 0 {
		return fmt.Errorf("%w: origin id must be positive", ErrInvalidOrigin)
	}
	return nil
}

// TransferInput describes a register to petty-cash transfer.
type TransferInput struct {
	BranchID       int64
	ActorID        int64
	Amount         decimal.Decimal
	Description    string
	OriginKind     OriginKind
	OriginID       int64
	IdempotencyKey string
}

// Validate enforces a positive amount and a supported origin.
func (in TransferInput) Validate() error {
	if in.BranchID <= 0 {
		return ErrBranchRequired
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := checkMoney("amount", in.Amount); err != nil {
		return err
	}
	switch in.OriginKind {
	case "", OriginPettyCash, OriginClosing:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, in.OriginKind)
	}
	return nil
}

// TransferResult links both sides of a transfer.
type TransferResult struct {
	RegisterMovementID  int64
	PettyCashMovementID int64
	Amount              decimal.Decimal
	NewBalance          decimal.Decimal
}

// PettyCashInput describes a manual petty-cash entry.
type PettyCashInput struct {
	BranchID       int64
	ActorID        int64
	Kind           MovementKind
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// Validate applies the manual-entry rules: INGRESO or EGRESO only, positive
// amount, and a description on every outflow.
func (in PettyCashInput) Validate() error {
	if in.BranchID <= 0 {
		return ErrBranchRequired
	}
	if in.Kind != KindIngreso && in.Kind != KindEgreso {
		return fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := checkMoney("amount", in.Amount); err != nil {
		return err
	}
	if in.Kind == KindEgreso && strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// Sentinel errors. Each wraps an httpx class so the HTTP layer can map it.
var (
	ErrBranchRequired         = fmt.Errorf("%w: caja: branch required", httpx.ErrValidation)
	ErrCountedBalanceRequired = fmt.Errorf("%w: caja: counted balance is required", httpx.ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: caja: amount must be greater than zero", httpx.ErrValidation)
	ErrInvalidKind            = fmt.Errorf("%w: caja: invalid movement kind", httpx.ErrValidation)
	ErrInvalidOrigin          = fmt.Errorf("%w: caja: invalid origin", httpx.ErrValidation)
	ErrDescriptionRequired    = fmt.Errorf("%w: caja: description required for egresos", httpx.ErrValidation)
	ErrNoOpenRegister         = fmt.Errorf("%w: caja: no open register", httpx.ErrNotFound)
	ErrRegisterNotFound       = fmt.Errorf("%w: caja: register not found", httpx.ErrNotFound)
	ErrClosingNotFound        = fmt.Errorf("%w: caja: closing not found", httpx.ErrNotFound)
	ErrPettyCashNotFound      = fmt.Errorf("%w: caja: petty cash not found", httpx.ErrNotFound)
	ErrMovementNotFound       = fmt.Errorf("%w: caja: movement not found", httpx.ErrNotFound)
	ErrInsufficientFunds      = fmt.Errorf("%w: caja: petty cash balance too low", httpx.ErrInsufficientFunds)
	ErrMovementConflict       = fmt.Errorf("%w: caja: origin already booked with different values", httpx.ErrConflict)
	ErrCloseInProgress        = fmt.Errorf("%w: caja: close already in progress for branch", httpx.ErrConflict)
)

// ErrOpenRegisterExists is returned by repositories when the single-open
// register constraint rejects an insert.
var ErrOpenRegisterExists = errors.New("caja: open register already exists")

// ErrPettyCashExists is returned when the one-per-branch petty cash constraint
// rejects an insert.
var ErrPettyCashExists = errors.New("caja: petty cash already exists")

// ErrDuplicateOrigin is returned when a movement with the same origin is
// already booked on the register.
var ErrDuplicateOrigin = errors.New("caja: movement origin already booked")

// ClosingDetail extends a closing with the figures of its register period.
type ClosingDetail struct {
	Closing             Closing
	Totals              KindTotals
	Payments            []PaymentTotal
	PettyCashMovementID int64
}

// CashIngresos is manual ingresos plus order payments in cash methods.
func (d ClosingDetail) CashIngresos() decimal.Decimal {
	cash, _ := SplitPayments(d.Payments)
	return d.Totals.Ingresos.Add(cash)
}
