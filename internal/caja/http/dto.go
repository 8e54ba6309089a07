package cajahttp

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/taller-erp/taller-erp/internal/caja"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// decimal.Decimal is validated through its float value so gt/gte tags apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

type closeRequest struct {
	BranchID           int64            `json:"branch_id"`
	CountedBalance     *decimal.Decimal `json:"counted_balance" validate:"omitempty,gte=0,lte=9999999999.99"`
	PettyCashAmount    decimal.Decimal  `json:"petty_cash_amount" validate:"gte=0,lte=9999999999.99"`
	NextOpeningBalance *decimal.Decimal `json:"next_opening_balance" validate:"omitempty,gte=0,lte=9999999999.99"`
	Description        string           `json:"description" validate:"max=500"`
}

type transferRequest struct {
	BranchID    int64           `json:"branch_id"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0,lte=9999999999.99"`
	Description string          `json:"description" validate:"max=500"`
}

type pettyMovementRequest struct {
	BranchID    int64           `json:"branch_id"`
	Kind        string          `json:"kind" validate:"required,oneof=INGRESO EGRESO"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0,lte=9999999999.99"`
	Description string          `json:"description" validate:"max=500"`
}

type movementRequest struct {
	BranchID        int64           `json:"branch_id"`
	Kind            string          `json:"kind" validate:"required,oneof=INGRESO EGRESO"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0,lte=9999999999.99"`
	Concept         string          `json:"concept" validate:"max=200"`
	Description     string          `json:"description" validate:"max=500"`
	OriginKind      string          `json:"origin_kind" validate:"omitempty,oneof=MANUAL PAGO_TRABAJADOR"`
	OriginID        int64           `json:"origin_id" validate:"gte=0"`
	PaymentMethodID int64           `json:"payment_method_id" validate:"gte=0"`
}

type registerView struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	State          string    `json:"state"`
	OpeningBalance string    `json:"opening_balance"`
	OpenedBy       int64     `json:"opened_by,omitempty"`
	OpenedByName   string    `json:"opened_by_name,omitempty"`
	OpenedAt       time.Time `json:"opened_at"`
}

type totalsView struct {
	CashPayments   string `json:"cash_payments"`
	CardPayments   string `json:"card_payments"`
	ManualIngresos string `json:"manual_ingresos"`
	CashIngresos   string `json:"cash_ingresos"`
	CashEgresos    string `json:"cash_egresos"`
	ExpectedCash   string `json:"expected_cash"`
	PeriodTotal    string `json:"period_total"`
}

type paymentMethodView struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	IsCash bool   `json:"is_cash"`
	Total  string `json:"total"`
}

type operationView struct {
	Label     string `json:"label"`
	Cash      string `json:"cash"`
	Card      string `json:"card"`
	Total     string `json:"total"`
	IsExpense bool   `json:"is_expense"`
}

type movementView struct {
	ID              int64     `json:"id"`
	RegisterID      int64     `json:"register_id"`
	Kind            string    `json:"kind"`
	Amount          string    `json:"amount"`
	OccurredAt      time.Time `json:"occurred_at"`
	OriginKind      string    `json:"origin_kind"`
	OriginID        int64     `json:"origin_id,omitempty"`
	Concept         string    `json:"concept"`
	Description     string    `json:"description"`
	UserID          int64     `json:"user_id,omitempty"`
	UserName        string    `json:"user_name,omitempty"`
	PaymentMethodID int64     `json:"payment_method_id,omitempty"`
}

type pettyMovementView struct {
	ID                 int64     `json:"id"`
	Kind               string    `json:"kind"`
	Amount             string    `json:"amount"`
	OccurredAt         time.Time `json:"occurred_at"`
	Description        string    `json:"description"`
	OriginKind         string    `json:"origin_kind"`
	OriginID           int64     `json:"origin_id,omitempty"`
	RegisterMovementID int64     `json:"register_movement_id,omitempty"`
	UserName           string    `json:"user_name,omitempty"`
}

type pettyCashView struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	Balance      string             `json:"balance"`
	LastMovement *pettyMovementView `json:"last_movement"`
}

type closingView struct {
	ID                 int64     `json:"id"`
	RegisterID         int64     `json:"register_id"`
	RegisterName       string    `json:"register_name,omitempty"`
	ClosedAt           time.Time `json:"closed_at"`
	ClosedBy           string    `json:"closed_by,omitempty"`
	OpeningBalance     string    `json:"opening_balance"`
	TheoreticalBalance string    `json:"theoretical_balance"`
	CountedBalance     string    `json:"counted_balance"`
	Difference         string    `json:"difference"`
	Classification     string    `json:"classification"`
	PettyCashAmount    string    `json:"petty_cash_amount"`
	NextOpeningBalance string    `json:"next_opening_balance"`
	TotalInvoiced      string    `json:"total_invoiced"`
	PeriodResult       string    `json:"period_result"`
	Description        string    `json:"description,omitempty"`
}

type closingDetailView struct {
	closingView
	OpenedAt            time.Time `json:"opened_at"`
	OpenedBy            string    `json:"opened_by,omitempty"`
	ManualIngresos      string    `json:"manual_ingresos"`
	ManualEgresos       string    `json:"manual_egresos"`
	CashIngresos        string    `json:"cash_ingresos"`
	PettyCashMovementID int64     `json:"petty_cash_movement_id,omitempty"`
}

type paymentBreakdownView struct {
	Method string `json:"method"`
	Total  string `json:"total"`
}

func toRegisterView(snap caja.Snapshot) registerView {
	reg := snap.Register
	return registerView{
		ID:             reg.ID,
		Code:           snap.Code,
		Name:           reg.Name,
		State:          string(reg.State),
		OpeningBalance: caja.Money(reg.OpeningBalance),
		OpenedBy:       reg.OpenedBy,
		OpenedByName:   reg.OpenedByName,
		OpenedAt:       reg.OpenedAt,
	}
}

func toTotalsView(snap caja.Snapshot) totalsView {
	return totalsView{
		CashPayments:   caja.Money(snap.CashPayments),
		CardPayments:   caja.Money(snap.CardPayments),
		ManualIngresos: caja.Money(snap.Totals.Ingresos),
		CashIngresos:   caja.Money(snap.CashIngresos()),
		CashEgresos:    caja.Money(snap.Totals.Egresos),
		ExpectedCash:   caja.Money(snap.ExpectedCash),
		PeriodTotal:    caja.Money(snap.PeriodTotal),
	}
}

func toPaymentMethodViews(totals []caja.PaymentTotal) []paymentMethodView {
	out := make([]paymentMethodView, 0, len(totals))
	for _, t := range totals {
		out = append(out, paymentMethodView{ID: t.MethodID, Code: t.MethodCode, Name: t.MethodName, IsCash: t.IsCash, Total: caja.Money(t.Total)})
	}
	return out
}

func toOperationViews(ops []caja.Operation) []operationView {
	out := make([]operationView, 0, len(ops))
	for _, op := range ops {
		card := "-"
		if op.Card != nil {
			card = caja.Money(*op.Card)
		}
		out = append(out, operationView{Label: op.Label, Cash: caja.Money(op.Cash), Card: card, Total: caja.Money(op.Total), IsExpense: op.IsExpense})
	}
	return out
}

func toMovementView(m caja.Movement) movementView {
	return movementView{
		ID:              m.ID,
		RegisterID:      m.RegisterID,
		Kind:            string(m.Kind),
		Amount:          caja.Money(m.Amount),
		OccurredAt:      m.OccurredAt,
		OriginKind:      string(m.OriginKind),
		OriginID:        m.OriginID,
		Concept:         m.Concept,
		Description:     m.Description,
		UserID:          m.UserID,
		UserName:        m.UserName,
		PaymentMethodID: m.PaymentMethodID,
	}
}

func toPettyMovementView(m caja.PettyCashMovement) pettyMovementView {
	return pettyMovementView{
		ID:                 m.ID,
		Kind:               string(m.Kind),
		Amount:             caja.Money(m.Amount),
		OccurredAt:         m.OccurredAt,
		Description:        m.Description,
		OriginKind:         string(m.OriginKind),
		OriginID:           m.OriginID,
		RegisterMovementID: m.RegisterMovementID,
		UserName:           m.UserName,
	}
}

func toPettyCashView(pc caja.PettyCash, last *caja.PettyCashMovement) pettyCashView {
	view := pettyCashView{ID: pc.ID, Name: pc.Name, Balance: caja.Money(pc.CurrentBalance)}
	if last != nil {
		lv := toPettyMovementView(*last)
		view.LastMovement = &lv
	}
	return view
}

func toClosingView(c caja.Closing) closingView {
	return closingView{
		ID:                 c.ID,
		RegisterID:         c.RegisterID,
		RegisterName:       c.RegisterName,
		ClosedAt:           c.ClosedAt,
		ClosedBy:           c.ClosedByName,
		OpeningBalance:     caja.Money(c.OpeningBalance),
		TheoreticalBalance: caja.Money(c.TheoreticalBalance),
		CountedBalance:     caja.Money(c.CountedBalance),
		Difference:         caja.Money(c.Difference),
		Classification:     string(c.Classification),
		PettyCashAmount:    caja.Money(c.PettyCashAmount),
		NextOpeningBalance: caja.Money(c.NextOpeningBalance),
		TotalInvoiced:      caja.Money(c.TotalInvoiced),
		PeriodResult:       caja.Money(c.PeriodResult()),
		Description:        c.Description,
	}
}

func toClosingDetailView(d caja.ClosingDetail) (closingDetailView, []paymentBreakdownView) {
	view := closingDetailView{
		closingView:         toClosingView(d.Closing),
		OpenedAt:            d.Closing.OpenedAt,
		OpenedBy:            d.Closing.OpenedByName,
		ManualIngresos:      caja.Money(d.Totals.Ingresos),
		ManualEgresos:       caja.Money(d.Totals.Egresos),
		CashIngresos:        caja.Money(d.CashIngresos()),
		PettyCashMovementID: d.PettyCashMovementID,
	}
	breakdown := make([]paymentBreakdownView, 0, len(d.Payments))
	for _, p := range d.Payments {
		breakdown = append(breakdown, paymentBreakdownView{Method: p.MethodName, Total: caja.Money(p.Total)})
	}
	return view, breakdown
}
