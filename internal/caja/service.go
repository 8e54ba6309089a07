package caja

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/taller-erp/taller-erp/internal/shared"
)

const (
	idempotencyModuleClose    = "caja.close"
	idempotencyModuleTransfer = "caja.transfer"
	idempotencyModulePetty    = "caja.petty"
	idempotencyModuleMovement = "caja.movement"
	defaultCloseTransferNote  = "Desde cierre de caja"
	defaultManualTransferNote = "Transferencia desde caja"
	defaultTransferConcept    = "Envío a caja chica"
	stateTimeout              = 15 * time.Second
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, branchID int64, filter MovementFilter) ([]Movement, int, error)
	ListPettyCashMovements(ctx context.Context, pettyCashID int64, filter MovementFilter) ([]PettyCashMovement, int, error)
	LastPettyCashMovement(ctx context.Context, pettyCashID int64) (*PettyCashMovement, error)
	ListClosings(ctx context.Context, branchID int64, page shared.PageRequest) ([]Closing, int, error)
	GetClosingDetail(ctx context.Context, id int64) (ClosingDetail, error)
	PettyCashDrift(ctx context.Context, branchID int64) ([]Drift, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims and releases request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// BranchLocker serialises closes of one branch across processes.
type BranchLocker interface {
	Acquire(ctx context.Context, branchID int64) (release func(context.Context) error, err error)
}

// ServiceConfig groups optional collaborators and settings.
type ServiceConfig struct {
	Thresholds  Thresholds
	Idempotency IdempotencyPort
	Locker      BranchLocker
	Events      EventHandler
	Logger      *slog.Logger
}

// Service coordinates the register ledger, closings and petty cash.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	locker      BranchLocker
	events      EventHandler
	logger      *slog.Logger
	thresholds  Thresholds
	now         func() time.Time
	stateGroup  singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	th := cfg.Thresholds
	if th.WarnPct.IsZero() && th.CriticalPct.IsZero() {
		th = DefaultThresholds()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: cfg.Idempotency,
		locker:      cfg.Locker,
		events:      cfg.Events,
		logger:      logger,
		thresholds:  th,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetOrCreateOpenRegister returns the open register of the branch, creating
// one with a zero opening balance when none exists.
func (s *Service) GetOrCreateOpenRegister(ctx context.Context, branchID, actorID int64) (Register, error) {
	if branchID <= 0 {
		return Register{}, ErrBranchRequired
	}
	var reg Register
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reg, err = s.openRegisterInTx(ctx, tx, branchID, actorID, false)
		return err
	})
	return reg, err
}

// openRegisterInTx reads the open register and lazily provisions one. A
// concurrent provisioner makes the insert fail on the single-open index; the
// winner's row is then re-read. Writers pass forShare so a running close
// finishes before they pick the register to book on.
func (s *Service) openRegisterInTx(ctx context.Context, tx TxRepository, branchID, actorID int64, forShare bool) (Register, error) {
	load := tx.FindOpenRegister
	if forShare {
		load = tx.ShareOpenRegister
	}
	reg, err := load(ctx, branchID)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, ErrNoOpenRegister) {
		return Register{}, err
	}
	reg, err = tx.InsertRegister(ctx, Register{
		BranchID:       branchID,
		Name:           defaultRegisterName,
		State:          RegisterOpen,
		OpeningBalance: decimal.Zero,
		OpenedBy:       actorID,
		OpenedAt:       s.now(),
	})
	if errors.Is(err, ErrOpenRegisterExists) {
		return load(ctx, branchID)
	}
	return reg, err
}

// CurrentState builds the live snapshot of the branch's open register.
// Concurrent calls for one branch share a single computation.
func (s *Service) CurrentState(ctx context.Context, branchID, actorID int64, branchName string) (Snapshot, error) {
	if branchID <= 0 {
		return Snapshot{}, ErrBranchRequired
	}
	key := strconv.FormatInt(branchID, 10)
	// The shared computation outlives any single caller; each caller gives up
	// on its own context below.
	ch := s.stateGroup.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateTimeout)
		defer cancel()
		return s.currentState(sharedCtx, branchID, actorID, branchName)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (s *Service) currentState(ctx context.Context, branchID, actorID int64, branchName string) (Snapshot, error) {
	var snap Snapshot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reg, err := s.openRegisterInTx(ctx, tx, branchID, actorID, false)
		if err != nil {
			return err
		}
		totals, err := tx.AggregateByKind(ctx, reg.ID)
		if err != nil {
			return err
		}
		payments, err := tx.AggregatePayments(ctx, reg.ID)
		if err != nil {
			return err
		}
		purchases, err := tx.AggregatePurchases(ctx, branchID, reg.OpenedAt)
		if err != nil {
			return err
		}
		seq, err := tx.RegisterSequence(ctx, branchID, reg.ID)
		if err != nil {
			return err
		}
		reg.Sequence = seq
		pc, err := s.pettyCashInTx(ctx, tx, branchID, false)
		if err != nil {
			return err
		}
		snap = BuildSnapshot(reg, payments, totals, purchases)
		snap.Code = RegisterCode(branchName, seq)
		snap.PettyCash = pc
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	last, err := s.repo.LastPettyCashMovement(ctx, snap.PettyCash.ID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.LastPettyMove = last
	return snap, nil
}

// ListMovements returns register movements of the branch, newest first.
func (s *Service) ListMovements(ctx context.Context, branchID int64, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if branchID <= 0 {
		return nil, shared.Pagination{}, ErrBranchRequired
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
	}
	page := shared.NewPageRequest(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page.Page, page.PerPage
	items, total, err := s.repo.ListMovements(ctx, branchID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// RecordMovement appends a movement to an existing open register. Movements that
// reference an external origin are booked once per register: a retry with the
// same kind and amount returns the original row with replayed set.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Movement, bool, error) {
	if err := in.Validate(); err != nil {
		return Movement{}, false, err
	}
	if in.RegisterID <= 0 {
		return Movement{}, false, ErrRegisterNotFound
	}
	var (
		mov      Movement
		replayed bool
	)
	err := s.withIdempotency(ctx, in.IdempotencyKey, idempotencyModuleMovement, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			reg, err := tx.LockRegister(ctx, in.RegisterID)
			if err != nil {
				return err
			}
			if reg.State != RegisterOpen {
				return fmt.Errorf("%w: register %d is %s", ErrNoOpenRegister, reg.ID, reg.State)
			}
			mov, replayed, err = s.recordInTx(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return Movement{}, false, err
	}
	return mov, replayed, nil
}

// RecordBranchMovement appends a movement to the branch's open register,
// provisioning it when needed.
func (s *Service) RecordBranchMovement(ctx context.Context, branchID int64, in MovementInput) (Movement, bool, error) {
	if branchID <= 0 {
		return Movement{}, false, ErrBranchRequired
	}
	if in.OriginKind == "" {
		in.OriginKind = OriginManual
	}
	if err := in.Validate(); err != nil {
		return Movement{}, false, err
	}
	var (
		mov      Movement
		replayed bool
	)
	err := s.withIdempotency(ctx, in.IdempotencyKey, idempotencyModuleMovement, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			reg, err := s.openRegisterInTx(ctx, tx, branchID, in.ActorID, true)
			if err != nil {
				return err
			}
			in.RegisterID = reg.ID
			mov, replayed, err = s.recordInTx(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return Movement{}, false, err
	}
	if !replayed {
		s.recordAudit(ctx, in.ActorID, "caja:movement", "caja_movimiento", mov.ID, map[string]any{
			"register_id": mov.RegisterID,
			"kind":        mov.Kind,
			"amount":      Money(mov.Amount),
			"origin_kind": mov.OriginKind,
		})
	}
	return mov, replayed, nil
}

func (s *Service) recordInTx(ctx context.Context, tx TxRepository, in MovementInput) (Movement, bool, error) {
	if in.OriginKind == "" {
		in.OriginKind = OriginManual
	}
	if in.OriginID > 0 {
		existing, err := tx.FindMovementByOrigin(ctx, in.RegisterID, in.OriginKind, in.OriginID)
		if err == nil {
			return matchReplay(existing, in)
		}
		if !errors.Is(err, ErrMovementNotFound) {
			return Movement{}, false, err
		}
	}
	mov, err := tx.InsertMovement(ctx, Movement{
		RegisterID:      in.RegisterID,
		UserID:          in.ActorID,
		PaymentMethodID: in.PaymentMethodID,
		Kind:            in.Kind,
		Amount:          in.Amount,
		OccurredAt:      s.now(),
		OriginKind:      in.OriginKind,
		OriginID:        in.OriginID,
		Concept:         in.Concept,
		Description:     in.Description,
	})
	if errors.Is(err, ErrDuplicateOrigin) {
		existing, findErr := tx.FindMovementByOrigin(ctx, in.RegisterID, in.OriginKind, in.OriginID)
		if findErr != nil {
			return Movement{}, false, findErr
		}
		return matchReplay(existing, in)
	}
	if err != nil {
		return Movement{}, false, err
	}
	return mov, false, nil
}

func matchReplay(existing Movement, in MovementInput) (Movement, bool, error) {
	if existing.Kind != in.Kind || !existing.Amount.Equal(in.Amount) {
		return Movement{}, false, ErrMovementConflict
	}
	return existing, true, nil
}

// CloseRegister reconciles and closes the branch's open register, optionally
// moving cash to petty cash, and opens the next register. Every step runs in
// one transaction holding a row lock on the register being closed.
func (s *Service) CloseRegister(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}
	var result CloseResult
	err := s.withIdempotency(ctx, in.IdempotencyKey, idempotencyModuleClose, func() error {
		release, err := s.lockBranch(ctx, in.BranchID)
		if err != nil {
			return err
		}
		defer release()
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			result, err = s.closeInTx(ctx, tx, in)
			return err
		})
	})
	if err != nil {
		return CloseResult{}, err
	}

	closing := result.Closing
	logger := s.logger.With(
		slog.Int64("branch_id", in.BranchID),
		slog.Int64("closing_id", closing.ID),
		slog.String("theoretical", Money(closing.TheoreticalBalance)),
		slog.String("counted", Money(closing.CountedBalance)),
		slog.String("difference", Money(closing.Difference)),
		slog.String("classification", string(closing.Classification)),
	)
	if closing.Classification == ClassificationNormal {
		logger.Info("register closed")
	} else {
		logger.Warn("register closed with deviation")
	}
	s.recordAudit(ctx, in.ActorID, "caja:close", "caja_cierre", closing.ID, map[string]any{
		"register_id":     closing.RegisterID,
		"new_register_id": result.NewRegisterID,
		"theoretical":     Money(closing.TheoreticalBalance),
		"counted":         Money(closing.CountedBalance),
		"difference":      Money(closing.Difference),
		"petty_cash":      Money(closing.PettyCashAmount),
		"classification":  closing.Classification,
	})
	if s.events != nil {
		evt := ClosingRecordedEvent{
			ClosingID:      closing.ID,
			BranchID:       in.BranchID,
			RegisterID:     closing.RegisterID,
			NewRegisterID:  result.NewRegisterID,
			Difference:     closing.Difference,
			Classification: closing.Classification,
			TransferAmount: closing.PettyCashAmount,
			ClosedAt:       closing.ClosedAt,
		}
		if err := s.events.HandleClosingRecorded(ctx, evt); err != nil {
			logger.Warn("closing event", slog.Any("error", err))
		}
		if result.Transfer != nil {
			s.emitTransfer(ctx, in.BranchID, OriginClosing, *result.Transfer)
		}
	}
	return result, nil
}

func (s *Service) closeInTx(ctx context.Context, tx TxRepository, in CloseInput) (CloseResult, error) {
	reg, err := tx.LockOpenRegister(ctx, in.BranchID)
	if err != nil {
		return CloseResult{}, err
	}
	totals, err := tx.AggregateByKind(ctx, reg.ID)
	if err != nil {
		return CloseResult{}, err
	}
	payments, err := tx.AggregatePayments(ctx, reg.ID)
	if err != nil {
		return CloseResult{}, err
	}
	cash, _ := SplitPayments(payments)
	counted := *in.CountedBalance
	theoretical := Theoretical(reg.OpeningBalance, cash, totals)
	difference := counted.Sub(theoretical)
	now := s.now()

	closing, err := tx.InsertClosing(ctx, Closing{
		RegisterID:         reg.ID,
		BranchID:           reg.BranchID,
		UserID:             in.ActorID,
		ClosedAt:           now,
		OpeningBalance:     reg.OpeningBalance,
		TheoreticalBalance: theoretical,
		CountedBalance:     counted,
		Difference:         difference,
		PettyCashAmount:    in.PettyCashAmount,
		NextOpeningBalance: NextOpening(counted, in.PettyCashAmount, in.NextOpeningBalance),
		Classification:     Classify(difference, theoretical, s.thresholds),
		Description:        in.Description,
	})
	if err != nil {
		return CloseResult{}, err
	}

	result := CloseResult{Closing: closing}
	if in.PettyCashAmount.IsPositive() {
		transfer, err := s.transferInTx(ctx, tx, reg, TransferInput{
			BranchID:    in.BranchID,
			ActorID:     in.ActorID,
			Amount:      in.PettyCashAmount,
			Description: in.Description,
			OriginKind:  OriginClosing,
			OriginID:    closing.ID,
		})
		if err != nil {
			return CloseResult{}, err
		}
		result.Transfer = &transfer
	}

	if err := tx.MarkRegisterClosed(ctx, reg.ID, now); err != nil {
		return CloseResult{}, err
	}
	next, err := tx.InsertRegister(ctx, Register{
		BranchID:       reg.BranchID,
		Name:           reg.Name,
		State:          RegisterOpen,
		OpeningBalance: closing.NextOpeningBalance,
		OpenedBy:       in.ActorID,
		OpenedAt:       now,
	})
	if err != nil {
		return CloseResult{}, err
	}
	result.NewRegisterID = next.ID
	return result, nil
}

// TransferToPettyCash moves cash from the branch's open register into its
// petty-cash account. Both ledgers and the petty-cash balance change in one
// transaction or not at all.
func (s *Service) TransferToPettyCash(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.OriginKind == "" {
		in.OriginKind = OriginPettyCash
	}
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	var result TransferResult
	err := s.withIdempotency(ctx, in.IdempotencyKey, idempotencyModuleTransfer, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			reg, err := s.openRegisterInTx(ctx, tx, in.BranchID, in.ActorID, true)
			if err != nil {
				return err
			}
			result, err = s.transferInTx(ctx, tx, reg, in)
			return err
		})
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.recordAudit(ctx, in.ActorID, "caja:transfer", "caja_chica_movimiento", result.PettyCashMovementID, map[string]any{
		"branch_id":            in.BranchID,
		"amount":               Money(result.Amount),
		"register_movement_id": result.RegisterMovementID,
		"origin_kind":          in.OriginKind,
	})
	s.emitTransfer(ctx, in.BranchID, in.OriginKind, result)
	return result, nil
}

func (s *Service) transferInTx(ctx context.Context, tx TxRepository, reg Register, in TransferInput) (TransferResult, error) {
	registerMov, err := tx.InsertMovement(ctx, Movement{
		RegisterID:  reg.ID,
		UserID:      in.ActorID,
		Kind:        KindEgreso,
		Amount:      in.Amount,
		OccurredAt:  s.now(),
		OriginKind:  in.OriginKind,
		OriginID:    in.OriginID,
		Concept:     defaultTransferConcept,
		Description: in.Description,
	})
	if err != nil {
		return TransferResult{}, err
	}
	pc, err := s.pettyCashInTx(ctx, tx, in.BranchID, true)
	if err != nil {
		return TransferResult{}, err
	}
	pettyOrigin := OriginMainRegister
	note := defaultManualTransferNote
	if in.OriginKind == OriginClosing {
		pettyOrigin = OriginClosing
		note = defaultCloseTransferNote
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		note = desc
	}
	pettyMov, err := tx.InsertPettyCashMovement(ctx, PettyCashMovement{
		PettyCashID:        pc.ID,
		UserID:             in.ActorID,
		Kind:               KindInterno,
		Amount:             in.Amount,
		OccurredAt:         s.now(),
		Description:        note,
		OriginKind:         pettyOrigin,
		OriginID:           in.OriginID,
		RegisterMovementID: registerMov.ID,
	})
	if err != nil {
		return TransferResult{}, err
	}
	balance := pc.CurrentBalance.Add(in.Amount)
	if err := tx.UpdatePettyCashBalance(ctx, pc.ID, balance); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		RegisterMovementID:  registerMov.ID,
		PettyCashMovementID: pettyMov.ID,
		Amount:              in.Amount,
		NewBalance:          balance,
	}, nil
}

// pettyCashInTx resolves the branch's petty-cash account, creating it on first
// use. With forUpdate the row stays locked until the transaction ends.
func (s *Service) pettyCashInTx(ctx context.Context, tx TxRepository, branchID int64, forUpdate bool) (PettyCash, error) {
	load := tx.GetPettyCash
	if forUpdate {
		load = tx.GetPettyCashForUpdate
	}
	pc, err := load(ctx, branchID)
	if err == nil {
		return pc, nil
	}
	if !errors.Is(err, ErrPettyCashNotFound) {
		return PettyCash{}, err
	}
	pc, err = tx.InsertPettyCash(ctx, PettyCash{BranchID: branchID, Name: defaultPettyCashName, CurrentBalance: decimal.Zero})
	if errors.Is(err, ErrPettyCashExists) {
		return load(ctx, branchID)
	}
	return pc, err
}

// PettyCashState returns the branch's petty-cash account and its latest movement.
func (s *Service) PettyCashState(ctx context.Context, branchID int64) (PettyCash, *PettyCashMovement, error) {
	if branchID <= 0 {
		return PettyCash{}, nil, ErrBranchRequired
	}
	var pc PettyCash
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		pc, err = s.pettyCashInTx(ctx, tx, branchID, false)
		return err
	})
	if err != nil {
		return PettyCash{}, nil, err
	}
	last, err := s.repo.LastPettyCashMovement(ctx, pc.ID)
	if err != nil {
		return PettyCash{}, nil, err
	}
	return pc, last, nil
}

// ListPettyCashMovements returns the branch's petty-cash movements, newest first.
func (s *Service) ListPettyCashMovements(ctx context.Context, branchID int64, filter MovementFilter) ([]PettyCashMovement, shared.Pagination, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
	}
	pc, _, err := s.PettyCashState(ctx, branchID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPageRequest(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page.Page, page.PerPage
	items, total, err := s.repo.ListPettyCashMovements(ctx, pc.ID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// RecordPettyCashMovement books a manual INGRESO or EGRESO on petty cash and
// returns the movement with the resulting balance. An EGRESO larger than the
// balance fails with ErrInsufficientFunds and changes nothing.
func (s *Service) RecordPettyCashMovement(ctx context.Context, in PettyCashInput) (PettyCashMovement, decimal.Decimal, error) {
	if err := in.Validate(); err != nil {
		return PettyCashMovement{}, decimal.Zero, err
	}
	var (
		mov     PettyCashMovement
		balance decimal.Decimal
	)
	err := s.withIdempotency(ctx, in.IdempotencyKey, idempotencyModulePetty, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			pc, err := s.pettyCashInTx(ctx, tx, in.BranchID, true)
			if err != nil {
				return err
			}
			if in.Kind == KindEgreso && in.Amount.GreaterThan(pc.CurrentBalance) {
				return ErrInsufficientFunds
			}
			mov, err = tx.InsertPettyCashMovement(ctx, PettyCashMovement{
				PettyCashID: pc.ID,
				UserID:      in.ActorID,
				Kind:        in.Kind,
				Amount:      in.Amount,
				OccurredAt:  s.now(),
				Description: strings.TrimSpace(in.Description),
				OriginKind:  OriginManual,
			})
			if err != nil {
				return err
			}
			balance = pc.CurrentBalance.Add(mov.Signed())
			return tx.UpdatePettyCashBalance(ctx, pc.ID, balance)
		})
	})
	if err != nil {
		return PettyCashMovement{}, decimal.Zero, err
	}
	s.recordAudit(ctx, in.ActorID, "caja:petty_cash", "caja_chica_movimiento", mov.ID, map[string]any{
		"branch_id":   in.BranchID,
		"kind":        in.Kind,
		"amount":      Money(in.Amount),
		"new_balance": Money(balance),
	})
	return mov, balance, nil
}

// ListClosings returns the branch's closings, newest first.
func (s *Service) ListClosings(ctx context.Context, branchID int64, page, perPage int) ([]Closing, shared.Pagination, error) {
	if branchID <= 0 {
		return nil, shared.Pagination{}, ErrBranchRequired
	}
	req := shared.NewPageRequest(page, perPage)
	items, total, err := s.repo.ListClosings(ctx, branchID, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// GetClosing returns a closing with its period figures. A non-zero branchID
// restricts the lookup to that branch.
func (s *Service) GetClosing(ctx context.Context, branchID, id int64) (ClosingDetail, error) {
	if id <= 0 {
		return ClosingDetail{}, ErrClosingNotFound
	}
	detail, err := s.repo.GetClosingDetail(ctx, id)
	if err != nil {
		return ClosingDetail{}, err
	}
	if branchID > 0 && detail.Closing.BranchID != branchID {
		return ClosingDetail{}, ErrClosingNotFound
	}
	return detail, nil
}

// VerifyPettyCash lists petty-cash accounts whose balance drifted from their
// movement log. branchID zero checks every branch.
func (s *Service) VerifyPettyCash(ctx context.Context, branchID int64) ([]Drift, error) {
	drifts, err := s.repo.PettyCashDrift(ctx, branchID)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		s.logger.Error("petty cash balance drift",
			slog.Int64("branch_id", d.BranchID),
			slog.Int64("petty_cash_id", d.PettyCashID),
			slog.String("stored", Money(d.Stored)),
			slog.String("computed", Money(d.Computed)),
		)
	}
	return drifts, nil
}

func (s *Service) lockBranch(ctx context.Context, branchID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, branchID)
	if err != nil {
		return nil, err
	}
	return func() {
		// The caller's context may already be cancelled; the lock must still go.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("release branch lock", slog.Int64("branch_id", branchID), slog.Any("error", err))
		}
	}, nil
}

// withIdempotency claims key before fn and releases it when fn fails so the
// client may retry. An empty key runs fn unguarded.
func (s *Service) withIdempotency(ctx context.Context, key, module string, fn func() error) error {
	if key == "" || s.idempotency == nil {
		return fn()
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, module); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key, module); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (s *Service) emitTransfer(ctx context.Context, branchID int64, origin OriginKind, res TransferResult) {
	if s.events == nil {
		return
	}
	err := s.events.HandlePettyCashTransferred(ctx, PettyCashTransferredEvent{
		BranchID:   branchID,
		Origin:     origin,
		Amount:     res.Amount,
		NewBalance: res.NewBalance,
	})
	if err != nil {
		s.logger.Warn("petty cash transfer event", slog.Int64("branch_id", branchID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
