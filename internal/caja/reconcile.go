package caja

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Thresholds holds the deviation percentages used to classify a closing.
type Thresholds struct {
	WarnPct     decimal.Decimal
	CriticalPct decimal.Decimal
}

// DefaultThresholds grades up to 1% as normal and up to 5% as a warning.
func DefaultThresholds() Thresholds {
	return Thresholds{WarnPct: decimal.NewFromInt(1), CriticalPct: decimal.NewFromInt(5)}
}

// Money formats an amount as a fixed two-decimal string.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Theoretical computes opening + cash payments + manual ingresos - manual egresos.
func Theoretical(opening, cashPayments decimal.Decimal, totals KindTotals) decimal.Decimal {
	return opening.Add(cashPayments).Add(totals.Ingresos).Sub(totals.Egresos)
}

// SplitPayments separates cash from non-cash order payment totals.
func SplitPayments(totals []PaymentTotal) (cash, other decimal.Decimal) {
	for _, t := range totals {
		if t.IsCash {
			cash = cash.Add(t.Total)
			continue
		}
		other = other.Add(t.Total)
	}
	return cash, other
}

// DeviationPct returns |difference| as a percentage of theoretical, rounded to
// two places. A zero theoretical balance yields zero.
func DeviationPct(difference, theoretical decimal.Decimal) decimal.Decimal {
	if theoretical.IsZero() {
		return decimal.Zero
	}
	return difference.Div(theoretical).Mul(hundred).Abs().Round(2)
}

// Classify grades a closing difference against th.
func Classify(difference, theoretical decimal.Decimal, th Thresholds) Classification {
	if difference.IsZero() {
		return ClassificationNormal
	}
	if theoretical.IsZero() {
		return ClassificationCritical
	}
	pct := DeviationPct(difference, theoretical)
	switch {
	case pct.LessThanOrEqual(th.WarnPct):
		return ClassificationNormal
	case pct.LessThanOrEqual(th.CriticalPct):
		return ClassificationWarning
	default:
		return ClassificationCritical
	}
}

// NextOpening returns the opening balance of the register created by a close:
// the explicit value when given, otherwise the counted cash left after the
// petty-cash transfer, floored at zero.
func NextOpening(counted, transferred decimal.Decimal, explicit *decimal.Decimal) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	left := counted.Sub(transferred)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// PettyCashSum recomputes the balance implied by a movement log.
func PettyCashSum(movements []PettyCashMovement) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range movements {
		sum = sum.Add(m.Signed())
	}
	return sum
}

// Operation is a row of the current-state breakdown. Card is nil for rows
// that only ever move cash.
type Operation struct {
	Label     string
	Cash      decimal.Decimal
	Card      *decimal.Decimal
	Total     decimal.Decimal
	IsExpense bool
}

// Snapshot is the live state of a branch's open register.
type Snapshot struct {
	Register      Register
	Code          string
	Payments      []PaymentTotal
	Totals        KindTotals
	Purchases     PurchaseTotals
	CashPayments  decimal.Decimal
	CardPayments  decimal.Decimal
	ExpectedCash  decimal.Decimal
	PeriodTotal   decimal.Decimal
	PettyCash     PettyCash
	LastPettyMove *PettyCashMovement
	Operations    []Operation
}

// CashIngresos is cash payments plus manual ingresos.
func (s Snapshot) CashIngresos() decimal.Decimal {
	return s.CashPayments.Add(s.Totals.Ingresos)
}

// BuildSnapshot derives totals and the operation breakdown from raw aggregates.
// Purchases are listed as an expense row only; they are paid outside the
// register and never enter its totals.
func BuildSnapshot(reg Register, payments []PaymentTotal, totals KindTotals, purchases PurchaseTotals) Snapshot {
	cash, card := SplitPayments(payments)
	snap := Snapshot{
		Register:     reg,
		Payments:     payments,
		Totals:       totals,
		Purchases:    purchases,
		CashPayments: cash,
		CardPayments: card,
		ExpectedCash: Theoretical(reg.OpeningBalance, cash, totals),
		PeriodTotal:  cash.Add(card).Add(totals.Ingresos).Sub(totals.Egresos),
	}
	orders := cash.Add(card)
	if orders.IsPositive() {
		cardCopy := card
		snap.Operations = append(snap.Operations, Operation{Label: "Órdenes de reparación", Cash: cash, Card: &cardCopy, Total: orders})
	}
	if bought := purchases.Total(); bought.IsPositive() {
		cardNeg := purchases.Card.Neg()
		snap.Operations = append(snap.Operations, Operation{
			Label:     "Compras",
			Cash:      purchases.Cash.Neg(),
			Card:      &cardNeg,
			Total:     bought.Neg(),
			IsExpense: true,
		})
	}
	if totals.Ingresos.IsPositive() {
		snap.Operations = append(snap.Operations, Operation{Label: "Movimientos de caja", Cash: totals.Ingresos, Total: totals.Ingresos})
	}
	if totals.Egresos.IsPositive() {
		snap.Operations = append(snap.Operations, Operation{
			Label:     "Movimientos de caja (egresos)",
			Cash:      totals.Egresos.Neg(),
			Total:     totals.Egresos.Neg(),
			IsExpense: true,
		})
	}
	return snap
}
