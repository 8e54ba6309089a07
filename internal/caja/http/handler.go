package cajahttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taller-erp/taller-erp/internal/auth"
	"github.com/taller-erp/taller-erp/internal/branch"
	"github.com/taller-erp/taller-erp/internal/caja"
	"github.com/taller-erp/taller-erp/internal/platform/httpx"
	"github.com/taller-erp/taller-erp/internal/shared"
)

// IdempotencyHeader carries the client supplied key of a mutating request.
const IdempotencyHeader = "Idempotency-Key"

type cajaService interface {
	CurrentState(ctx context.Context, branchID, actorID int64, branchName string) (caja.Snapshot, error)
	ListMovements(ctx context.Context, branchID int64, filter caja.MovementFilter) ([]caja.Movement, shared.Pagination, error)
	RecordBranchMovement(ctx context.Context, branchID int64, in caja.MovementInput) (caja.Movement, bool, error)
	CloseRegister(ctx context.Context, in caja.CloseInput) (caja.CloseResult, error)
	TransferToPettyCash(ctx context.Context, in caja.TransferInput) (caja.TransferResult, error)
	PettyCashState(ctx context.Context, branchID int64) (caja.PettyCash, *caja.PettyCashMovement, error)
	ListPettyCashMovements(ctx context.Context, branchID int64, filter caja.MovementFilter) ([]caja.PettyCashMovement, shared.Pagination, error)
	RecordPettyCashMovement(ctx context.Context, in caja.PettyCashInput) (caja.PettyCashMovement, decimal.Decimal, error)
	ListClosings(ctx context.Context, branchID int64, page, perPage int) ([]caja.Closing, shared.Pagination, error)
	GetClosing(ctx context.Context, branchID, id int64) (caja.ClosingDetail, error)
}

type branchResolver interface {
	Resolve(ctx context.Context, p auth.Principal, requested int64) (branch.Branch, error)
	Scope(ctx context.Context, p auth.Principal) (branch.Scope, error)
}

// Handler exposes the register, closing and petty-cash endpoints.
type Handler struct {
	logger    *slog.Logger
	service   cajaService
	branches  branchResolver
	validator *validator.Validate
}

// NewHandler constructs a caja HTTP handler.
func NewHandler(logger *slog.Logger, service cajaService, branches branchResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		branches:  branches,
		validator: newValidator(),
	}
}

// MountRoutes registers HTTP routes. Callers mount it behind bearer auth.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sucursales", h.listBranches)
	r.Get("/estado-actual", h.currentState)
	r.Get("/movimientos", h.listMovements)
	r.Post("/movimientos", h.recordMovement)
	r.Post("/cerrar", h.closeRegister)
	r.Post("/enviar-caja-chica", h.transferToPettyCash)
	r.Route("/chica", func(r chi.Router) {
		r.Get("/estado", h.pettyCashState)
		r.Get("/movimientos", h.listPettyCashMovements)
		r.Post("/movimientos", h.recordPettyCashMovement)
	})
	r.Get("/cierres", h.listClosings)
	r.Get("/cierres/{id}", h.showClosing)
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	scope, err := h.branches.Scope(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var current any
	if scope.Current > 0 {
		current = scope.Current
	}
	httpx.OK(w, map[string]any{
		"branches":       scope.Branches,
		"can_select":     scope.CanSelect,
		"current_branch": current,
	})
}

func (h *Handler) currentState(w http.ResponseWriter, r *http.Request) {
	p, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	snap, err := h.service.CurrentState(r.Context(), b.ID, p.UserID, b.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{
		"branch":          b,
		"register":        toRegisterView(snap),
		"totals":          toTotalsView(snap),
		"petty_cash":      toPettyCashView(snap.PettyCash, snap.LastPettyMove),
		"payment_methods": toPaymentMethodViews(snap.Payments),
		"operations":      toOperationViews(snap.Operations),
	})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	_, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	filter, err := parseMovementFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, page, err := h.service.ListMovements(r.Context(), b.ID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]movementView, 0, len(items))
	for _, m := range items {
		views = append(views, toMovementView(m))
	}
	httpx.OK(w, map[string]any{"movements": views, "pagination": page})
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, b, ok := h.resolve(w, r, req.BranchID)
	if !ok {
		return
	}
	key, ok := h.idempotencyKey(w, r)
	if !ok {
		return
	}
	mov, replayed, err := h.service.RecordBranchMovement(r.Context(), b.ID, caja.MovementInput{
		ActorID:         p.UserID,
		PaymentMethodID: req.PaymentMethodID,
		Kind:            caja.MovementKind(req.Kind),
		Amount:          req.Amount,
		OriginKind:      caja.OriginKind(req.OriginKind),
		OriginID:        req.OriginID,
		Concept:         strings.TrimSpace(req.Concept),
		Description:     strings.TrimSpace(req.Description),
		IdempotencyKey:  key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{"movement": toMovementView(mov), "replayed": replayed})
}

func (h *Handler) closeRegister(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, b, ok := h.resolve(w, r, req.BranchID)
	if !ok {
		return
	}
	key, ok := h.idempotencyKey(w, r)
	if !ok {
		return
	}
	res, err := h.service.CloseRegister(r.Context(), caja.CloseInput{
		BranchID:           b.ID,
		ActorID:            p.UserID,
		CountedBalance:     req.CountedBalance,
		PettyCashAmount:    req.PettyCashAmount,
		NextOpeningBalance: req.NextOpeningBalance,
		Description:        strings.TrimSpace(req.Description),
		IdempotencyKey:     key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payload := map[string]any{
		"closing":         toClosingView(res.Closing),
		"new_register_id": res.NewRegisterID,
	}
	if res.Transfer != nil {
		payload["petty_cash_balance"] = caja.Money(res.Transfer.NewBalance)
	}
	httpx.OK(w, payload)
}

func (h *Handler) transferToPettyCash(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, b, ok := h.resolve(w, r, req.BranchID)
	if !ok {
		return
	}
	key, ok := h.idempotencyKey(w, r)
	if !ok {
		return
	}
	res, err := h.service.TransferToPettyCash(r.Context(), caja.TransferInput{
		BranchID:       b.ID,
		ActorID:        p.UserID,
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		OriginKind:     caja.OriginPettyCash,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{
		"amount":                 caja.Money(res.Amount),
		"new_balance":            caja.Money(res.NewBalance),
		"register_movement_id":   res.RegisterMovementID,
		"petty_cash_movement_id": res.PettyCashMovementID,
	})
}

func (h *Handler) pettyCashState(w http.ResponseWriter, r *http.Request) {
	_, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	pc, last, err := h.service.PettyCashState(r.Context(), b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{"petty_cash": toPettyCashView(pc, last)})
}

func (h *Handler) listPettyCashMovements(w http.ResponseWriter, r *http.Request) {
	_, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	filter, err := parseMovementFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, page, err := h.service.ListPettyCashMovements(r.Context(), b.ID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]pettyMovementView, 0, len(items))
	for _, m := range items {
		views = append(views, toPettyMovementView(m))
	}
	httpx.OK(w, map[string]any{"movements": views, "pagination": page})
}

func (h *Handler) recordPettyCashMovement(w http.ResponseWriter, r *http.Request) {
	var req pettyMovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, b, ok := h.resolve(w, r, req.BranchID)
	if !ok {
		return
	}
	key, ok := h.idempotencyKey(w, r)
	if !ok {
		return
	}
	mov, balance, err := h.service.RecordPettyCashMovement(r.Context(), caja.PettyCashInput{
		BranchID:       b.ID,
		ActorID:        p.UserID,
		Kind:           caja.MovementKind(req.Kind),
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{"movement": toPettyMovementView(mov), "new_balance": caja.Money(balance)})
}

func (h *Handler) listClosings(w http.ResponseWriter, r *http.Request) {
	_, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	page, perPage, err := parsePage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, pagination, err := h.service.ListClosings(r.Context(), b.ID, page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]closingView, 0, len(items))
	for _, c := range items {
		views = append(views, toClosingView(c))
	}
	httpx.OK(w, map[string]any{"closings": views, "pagination": pagination})
}

func (h *Handler) showClosing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, caja.ErrClosingNotFound)
		return
	}
	_, b, ok := h.resolve(w, r, 0)
	if !ok {
		return
	}
	detail, err := h.service.GetClosing(r.Context(), b.ID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, breakdown := toClosingDetailView(detail)
	httpx.OK(w, map[string]any{"closing": view, "payment_breakdown": breakdown})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, auth.ErrTokenInvalid)
		return auth.Principal{}, false
	}
	return p, true
}

// resolve determines the effective branch. bodyBranch is the branch named in
// a JSON body; the branch_id query parameter is used when it is zero.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, bodyBranch int64) (auth.Principal, branch.Branch, bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return auth.Principal{}, branch.Branch{}, false
	}
	requested := bodyBranch
	if requested == 0 {
		if raw := strings.TrimSpace(r.URL.Query().Get("branch_id")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				h.fail(w, r, fmt.Errorf("%w: branch_id must be a positive integer", httpx.ErrValidation))
				return auth.Principal{}, branch.Branch{}, false
			}
			requested = id
		}
	}
	b, err := h.branches.Resolve(r.Context(), p, requested)
	if err != nil {
		h.fail(w, r, err)
		return auth.Principal{}, branch.Branch{}, false
	}
	return p, b, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) idempotencyKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		return "", true
	}
	if _, err := uuid.Parse(key); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %s must be a UUID", httpx.ErrValidation, IdempotencyHeader))
		return "", false
	}
	return key, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("caja request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldName(fe.Field())+": "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func fieldName(goName string) string {
	var b strings.Builder
	for i, r := range goName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parsePage(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"), "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", httpx.ErrValidation, name)
	}
	return v, nil
}

func parseMovementFilter(r *http.Request) (caja.MovementFilter, error) {
	q := r.URL.Query()
	page, limit, err := parsePage(r)
	if err != nil {
		return caja.MovementFilter{}, err
	}
	filter := caja.MovementFilter{
		Kind:    caja.MovementKind(strings.ToUpper(strings.TrimSpace(q.Get("kind")))),
		Page:    page,
		PerPage: limit,
	}
	if filter.From, err = parseDate(q.Get("from"), false); err != nil {
		return caja.MovementFilter{}, err
	}
	if filter.To, err = parseDate(q.Get("to"), true); err != nil {
		return caja.MovementFilter{}, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return caja.MovementFilter{}, fmt.Errorf("%w: to must not be before from", httpx.ErrValidation)
	}
	return filter, nil
}

// parseDate accepts RFC3339 or a plain date. A plain "to" date covers the
// whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
