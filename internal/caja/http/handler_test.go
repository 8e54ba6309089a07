package cajahttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller-erp/internal/auth"
	"github.com/taller-erp/taller-erp/internal/branch"
	"github.com/taller-erp/taller-erp/internal/caja"
	"github.com/taller-erp/taller-erp/internal/shared"
)

type stubService struct {
	closeFn    func(caja.CloseInput) (caja.CloseResult, error)
	transferFn func(caja.TransferInput) (caja.TransferResult, error)
	pettyFn    func(caja.PettyCashInput) (caja.PettyCashMovement, decimal.Decimal, error)
	movementFn func(int64, caja.MovementInput) (caja.Movement, bool, error)
	listFn     func(int64, caja.MovementFilter) ([]caja.Movement, shared.Pagination, error)
	closingFn  func(int64, int64) (caja.ClosingDetail, error)
	stateFn    func(int64, string) (caja.Snapshot, error)
}

func (s *stubService) CurrentState(_ context.Context, branchID, _ int64, name string) (caja.Snapshot, error) {
	return s.stateFn(branchID, name)
}

func (s *stubService) ListMovements(_ context.Context, branchID int64, f caja.MovementFilter) ([]caja.Movement, shared.Pagination, error) {
	return s.listFn(branchID, f)
}

func (s *stubService) RecordBranchMovement(_ context.Context, branchID int64, in caja.MovementInput) (caja.Movement, bool, error) {
	return s.movementFn(branchID, in)
}

func (s *stubService) CloseRegister(_ context.Context, in caja.CloseInput) (caja.CloseResult, error) {
	return s.closeFn(in)
}

func (s *stubService) TransferToPettyCash(_ context.Context, in caja.TransferInput) (caja.TransferResult, error) {
	return s.transferFn(in)
}

func (s *stubService) PettyCashState(context.Context, int64) (caja.PettyCash, *caja.PettyCashMovement, error) {
	return caja.PettyCash{ID: 1, Name: "Caja Chica", CurrentBalance: decimal.NewFromInt(20)}, nil, nil
}

func (s *stubService) ListPettyCashMovements(context.Context, int64, caja.MovementFilter) ([]caja.PettyCashMovement, shared.Pagination, error) {
	return nil, shared.Pagination{Page: 1, PerPage: 20}, nil
}

func (s *stubService) RecordPettyCashMovement(_ context.Context, in caja.PettyCashInput) (caja.PettyCashMovement, decimal.Decimal, error) {
	return s.pettyFn(in)
}

func (s *stubService) ListClosings(context.Context, int64, int, int) ([]caja.Closing, shared.Pagination, error) {
	return []caja.Closing{{ID: 4, CountedBalance: decimal.NewFromInt(105), OpeningBalance: decimal.NewFromInt(50)}}, shared.Pagination{Page: 1, PerPage: 20, Total: 1, TotalPages: 1}, nil
}

func (s *stubService) GetClosing(_ context.Context, branchID, id int64) (caja.ClosingDetail, error) {
	return s.closingFn(branchID, id)
}

type stubResolver struct {
	branches map[int64]branch.Branch
}

func (s stubResolver) Resolve(_ context.Context, p auth.Principal, requested int64) (branch.Branch, error) {
	if requested == 0 {
		requested = p.BranchID
	}
	b, ok := s.branches[requested]
	if !ok {
		return branch.Branch{}, branch.ErrBranchNotFound
	}
	if !p.IsSuperAdmin && b.TenantID != p.TenantID {
		return branch.Branch{}, branch.ErrOutOfScope
	}
	return b, nil
}

func (s stubResolver) Scope(_ context.Context, p auth.Principal) (branch.Scope, error) {
	return branch.Scope{Branches: []branch.Branch{s.branches[p.BranchID]}, Current: p.BranchID}, nil
}

var defaultPrincipal = auth.Principal{UserID: 7, Name: "Ana", BranchID: 2, TenantID: 1}

func newRouter(svc *stubService) http.Handler {
	resolver := stubResolver{branches: map[int64]branch.Branch{
		2: {ID: 2, Name: "Sucursal Centro", TenantID: 1},
		3: {ID: 3, Name: "Sucursal Norte", TenantID: 1},
		9: {ID: 9, Name: "Otra", TenantID: 5},
	}}
	h := NewHandler(nil, svc, resolver)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), defaultPrincipal, "tok")))
		})
	})
	r.Route("/caja", h.MountRoutes)
	return r
}

func send(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var payload map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	return rr, payload
}

func TestCloseRegisterPassesInputAndFormatsMoney(t *testing.T) {
	var got caja.CloseInput
	svc := &stubService{closeFn: func(in caja.CloseInput) (caja.CloseResult, error) {
		got = in
		return caja.CloseResult{
			Closing: caja.Closing{
				ID:                 11,
				OpeningBalance:     decimal.NewFromInt(50),
				TheoreticalBalance: decimal.NewFromInt(105),
				CountedBalance:     decimal.NewFromInt(105),
				PettyCashAmount:    decimal.NewFromInt(20),
				NextOpeningBalance: decimal.NewFromInt(85),
				Classification:     caja.ClassificationNormal,
			},
			NewRegisterID: 12,
			Transfer:      &caja.TransferResult{NewBalance: decimal.NewFromInt(20)},
		}, nil
	}}
	key := "5f1f7f51-5b4e-4f58-9a3a-0d8f3c9e8a11"
	rr, body := send(t, newRouter(svc), http.MethodPost, "/caja/cerrar",
		`{"counted_balance":"105","petty_cash_amount":"20","description":" fin de turno "}`,
		map[string]string{IdempotencyHeader: key})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 2, got.BranchID)
	require.EqualValues(t, 7, got.ActorID)
	require.NotNil(t, got.CountedBalance)
	require.True(t, got.CountedBalance.Equal(decimal.NewFromInt(105)))
	require.Nil(t, got.NextOpeningBalance)
	require.Equal(t, "fin de turno", got.Description)
	require.Equal(t, key, got.IdempotencyKey)

	closing := body["closing"].(map[string]any)
	require.Equal(t, "105.00", closing["theoretical_balance"])
	require.Equal(t, "85.00", closing["next_opening_balance"])
	require.Equal(t, "55.00", closing["period_result"])
	require.Equal(t, "20.00", body["petty_cash_balance"])
	require.EqualValues(t, 12, body["new_register_id"])
}

func TestCloseRegisterRejectsNegativeAmounts(t *testing.T) {
	svc := &stubService{closeFn: func(caja.CloseInput) (caja.CloseResult, error) {
		t.Fatal("service must not be called")
		return caja.CloseResult{}, nil
	}}
	rr, _ := send(t, newRouter(svc), http.MethodPost, "/caja/cerrar", `{"counted_balance":"-1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "counted_balance")

	rr, _ = send(t, newRouter(svc), http.MethodPost, "/caja/cerrar", `{"counted_balance":"10","petty_cash_amount":"10000000000"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "petty_cash_amount")
}

func TestCloseRegisterMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing counted", caja.ErrCountedBalanceRequired, http.StatusBadRequest},
		{"sub-cent", caja.ErrInvalidAmount, http.StatusBadRequest},
		{"in progress", caja.ErrCloseInProgress, http.StatusConflict},
		{"insufficient", caja.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{closeFn: func(caja.CloseInput) (caja.CloseResult, error) {
				return caja.CloseResult{}, tc.err
			}}
			rr, body := send(t, newRouter(svc), http.MethodPost, "/caja/cerrar", `{}`, nil)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, false, body["success"])
			if tc.status == http.StatusInternalServerError {
				require.Empty(t, body["detail"])
			}
		})
	}
}

func TestIdempotencyKeyMustBeUUID(t *testing.T) {
	svc := &stubService{transferFn: func(caja.TransferInput) (caja.TransferResult, error) {
		t.Fatal("service must not be called")
		return caja.TransferResult{}, nil
	}}
	rr, _ := send(t, newRouter(svc), http.MethodPost, "/caja/enviar-caja-chica", `{"amount":"10"}`,
		map[string]string{IdempotencyHeader: "not-a-key"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransferUsesBodyBranchAndPettyOrigin(t *testing.T) {
	var got caja.TransferInput
	svc := &stubService{transferFn: func(in caja.TransferInput) (caja.TransferResult, error) {
		got = in
		return caja.TransferResult{Amount: in.Amount, NewBalance: decimal.NewFromInt(30), RegisterMovementID: 5, PettyCashMovementID: 6}, nil
	}}
	rr, body := send(t, newRouter(svc), http.MethodPost, "/caja/enviar-caja-chica", `{"branch_id":3,"amount":"10.5"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.EqualValues(t, 3, got.BranchID)
	require.Equal(t, caja.OriginPettyCash, got.OriginKind)
	require.Equal(t, "10.50", body["amount"])
	require.Equal(t, "30.00", body["new_balance"])
}

func TestTransferRejectsZeroAmount(t *testing.T) {
	svc := &stubService{}
	rr, _ := send(t, newRouter(svc), http.MethodPost, "/caja/enviar-caja-chica", `{"amount":"0"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOutOfScopeBranchIsForbidden(t *testing.T) {
	svc := &stubService{}
	rr, _ := send(t, newRouter(svc), http.MethodGet, "/caja/cierres?branch_id=9", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPettyMovementValidation(t *testing.T) {
	var calls int
	svc := &stubService{pettyFn: func(in caja.PettyCashInput) (caja.PettyCashMovement, decimal.Decimal, error) {
		calls++
		if err := in.Validate(); err != nil {
			return caja.PettyCashMovement{}, decimal.Zero, err
		}
		return caja.PettyCashMovement{ID: 1, Kind: in.Kind, Amount: in.Amount}, decimal.NewFromInt(15), nil
	}}
	h := newRouter(svc)

	rr, _ := send(t, h, http.MethodPost, "/caja/chica/movimientos", `{"kind":"INTERNO","amount":"5"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, calls)

	rr, _ = send(t, h, http.MethodPost, "/caja/chica/movimientos", `{"kind":"EGRESO","amount":"5"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 1, calls)

	rr, body := send(t, h, http.MethodPost, "/caja/chica/movimientos", `{"kind":"EGRESO","amount":"5","description":"papel"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "15.00", body["new_balance"])
}

func TestListMovementsParsesFilter(t *testing.T) {
	var got caja.MovementFilter
	svc := &stubService{listFn: func(_ int64, f caja.MovementFilter) ([]caja.Movement, shared.Pagination, error) {
		got = f
		return []caja.Movement{{ID: 1, Kind: caja.KindIngreso, Amount: decimal.NewFromInt(10)}}, shared.Pagination{Page: 2, PerPage: 5, Total: 6, TotalPages: 2}, nil
	}}
	rr, body := send(t, newRouter(svc), http.MethodGet, "/caja/movimientos?kind=ingreso&from=2024-03-01&to=2024-03-02&page=2&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, caja.KindIngreso, got.Kind)
	require.Equal(t, 2, got.Page)
	require.Equal(t, 5, got.PerPage)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.From)
	require.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), got.To)
	require.Len(t, body["movements"], 1)

	rr, _ = send(t, newRouter(svc), http.MethodGet, "/caja/movimientos?from=yesterday", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = send(t, newRouter(svc), http.MethodGet, "/caja/movimientos?from=2024-03-05&to=2024-03-01", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordMovementDefaultsAndReplay(t *testing.T) {
	var got caja.MovementInput
	svc := &stubService{movementFn: func(branchID int64, in caja.MovementInput) (caja.Movement, bool, error) {
		require.EqualValues(t, 2, branchID)
		got = in
		return caja.Movement{ID: 3, Kind: in.Kind, Amount: in.Amount, OriginKind: caja.OriginWorkerPayment, OriginID: in.OriginID}, true, nil
	}}
	rr, body := send(t, newRouter(svc), http.MethodPost, "/caja/movimientos",
		`{"kind":"EGRESO","amount":"12","concept":"Pago","origin_kind":"PAGO_TRABAJADOR","origin_id":44}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, caja.OriginWorkerPayment, got.OriginKind)
	require.EqualValues(t, 44, got.OriginID)
	require.Equal(t, true, body["replayed"])

	rr, _ = send(t, newRouter(svc), http.MethodPost, "/caja/movimientos", `{"kind":"EGRESO","amount":"12","origin_kind":"CIERRE"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShowClosing(t *testing.T) {
	svc := &stubService{closingFn: func(branchID, id int64) (caja.ClosingDetail, error) {
		if id != 4 {
			return caja.ClosingDetail{}, caja.ErrClosingNotFound
		}
		return caja.ClosingDetail{
			Closing: caja.Closing{ID: 4, BranchID: branchID, OpeningBalance: decimal.NewFromInt(50), CountedBalance: decimal.NewFromInt(105)},
			Totals:  caja.KindTotals{Ingresos: decimal.NewFromInt(10), Egresos: decimal.NewFromInt(5)},
			Payments: []caja.PaymentTotal{
				{MethodName: "Efectivo", IsCash: true, Total: decimal.NewFromInt(50)},
				{MethodName: "Tarjeta", Total: decimal.NewFromInt(40)},
			},
			PettyCashMovementID: 8,
		}, nil
	}}
	h := newRouter(svc)
	rr, body := send(t, h, http.MethodGet, "/caja/cierres/4", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	closing := body["closing"].(map[string]any)
	require.Equal(t, "60.00", closing["cash_ingresos"])
	require.EqualValues(t, 8, closing["petty_cash_movement_id"])
	require.Len(t, body["payment_breakdown"], 2)

	rr, _ = send(t, h, http.MethodGet, "/caja/cierres/5", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr, _ = send(t, h, http.MethodGet, "/caja/cierres/abc", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCurrentStateAndBranches(t *testing.T) {
	svc := &stubService{stateFn: func(branchID int64, name string) (caja.Snapshot, error) {
		require.Equal(t, "Sucursal Centro", name)
		reg := caja.Register{ID: 2, BranchID: branchID, Name: "Caja Principal", State: caja.RegisterOpen, OpeningBalance: decimal.NewFromInt(50)}
		snap := caja.BuildSnapshot(reg, []caja.PaymentTotal{{MethodName: "Efectivo", IsCash: true, Total: decimal.NewFromInt(50)}}, caja.KindTotals{}, caja.PurchaseTotals{})
		snap.Code = "#CJ-SC-002"
		return snap, nil
	}}
	h := newRouter(svc)
	rr, body := send(t, h, http.MethodGet, "/caja/estado-actual", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	register := body["register"].(map[string]any)
	require.Equal(t, "#CJ-SC-002", register["code"])
	totals := body["totals"].(map[string]any)
	require.Equal(t, "100.00", totals["expected_cash"])

	rr, body = send(t, h, http.MethodGet, "/caja/sucursales", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, body["can_select"])
	require.EqualValues(t, 2, body["current_branch"])

	rr, body = send(t, h, http.MethodGet, "/caja/chica/estado", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "20.00", body["petty_cash"].(map[string]any)["balance"])
}
