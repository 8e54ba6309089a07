package caja

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTheoreticalIsDecimalExact(t *testing.T) {
	totals := KindTotals{Ingresos: dec("0.10"), Egresos: dec("0.20")}
	got := Theoretical(dec("0.10"), dec("0.20"), totals)
	require.Equal(t, "0.20", Money(got))

	// binary floating point would drift over many small payments
	cash := decimal.Zero
	for i := 0; i < 1000; i++ {
		cash = cash.Add(dec("0.01"))
	}
	require.True(t, Theoretical(decimal.Zero, cash, KindTotals{}).Equal(dec("10")))
}

func TestSplitPayments(t *testing.T) {
	cash, other := SplitPayments([]PaymentTotal{
		{MethodID: 1, IsCash: true, Total: dec("30")},
		{MethodID: 2, Total: dec("12.5")},
		{MethodID: 3, IsCash: true, Total: dec("20")},
		{MethodID: 4, Total: dec("0.5")},
	})
	require.Equal(t, "50.00", Money(cash))
	require.Equal(t, "13.00", Money(other))
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name        string
		difference  string
		theoretical string
		want        Classification
	}{
		{"exact", "0", "100", ClassificationNormal},
		{"within warn", "-1", "100", ClassificationNormal},
		{"warn", "1.01", "100", ClassificationWarning},
		{"critical boundary", "-5", "100", ClassificationWarning},
		{"critical", "5.01", "100", ClassificationCritical},
		{"zero theoretical", "3", "0", ClassificationCritical},
		{"zero both", "0", "0", ClassificationNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(dec(tc.difference), dec(tc.theoretical), th))
		})
	}
}

func TestDeviationPctRounds(t *testing.T) {
	require.Equal(t, "4.76", DeviationPct(dec("-5"), dec("105")).StringFixed(2))
	require.True(t, DeviationPct(dec("5"), decimal.Zero).IsZero())
}

func TestNextOpening(t *testing.T) {
	require.Equal(t, "80.00", Money(NextOpening(dec("100"), dec("20"), nil)))
	require.Equal(t, "0.00", Money(NextOpening(dec("10"), dec("20"), nil)))
	require.Equal(t, "35.00", Money(NextOpening(dec("100"), dec("20"), decPtr("35"))))
}

func TestPettyCashSumTreatsInternoAsInbound(t *testing.T) {
	sum := PettyCashSum([]PettyCashMovement{
		{Kind: KindIngreso, Amount: dec("10")},
		{Kind: KindInterno, Amount: dec("20")},
		{Kind: KindEgreso, Amount: dec("7.25")},
	})
	require.Equal(t, "22.75", Money(sum))
}

func TestBuildSnapshotOperations(t *testing.T) {
	reg := Register{ID: 1, OpeningBalance: dec("50")}
	snap := BuildSnapshot(reg, []PaymentTotal{
		{MethodID: 1, IsCash: true, Total: dec("50")},
		{MethodID: 2, Total: dec("40")},
	}, KindTotals{Ingresos: dec("10"), Egresos: dec("5")}, PurchaseTotals{})

	require.Equal(t, "105.00", Money(snap.ExpectedCash))
	require.Equal(t, "95.00", Money(snap.PeriodTotal))
	require.Equal(t, "60.00", Money(snap.CashIngresos()))
	require.Len(t, snap.Operations, 3)
	require.Equal(t, "90.00", Money(snap.Operations[0].Total))
	require.NotNil(t, snap.Operations[0].Card)
	require.Equal(t, "40.00", Money(*snap.Operations[0].Card))
	require.Nil(t, snap.Operations[1].Card)
	require.Equal(t, "-5.00", Money(snap.Operations[2].Cash))

	empty := BuildSnapshot(reg, nil, KindTotals{}, PurchaseTotals{})
	require.Empty(t, empty.Operations)
	require.Equal(t, "50.00", Money(empty.ExpectedCash))
}

func TestBuildSnapshotListsPurchasesAsExpense(t *testing.T) {
	reg := Register{ID: 1, OpeningBalance: dec("20")}
	snap := BuildSnapshot(reg, []PaymentTotal{{MethodID: 1, IsCash: true, Total: dec("30")}},
		KindTotals{Ingresos: dec("4")}, PurchaseTotals{Cash: dec("12.50"), Card: dec("7.50")})

	require.Len(t, snap.Operations, 3)
	compras := snap.Operations[1]
	require.Equal(t, "Compras", compras.Label)
	require.True(t, compras.IsExpense)
	require.Equal(t, "-12.50", Money(compras.Cash))
	require.NotNil(t, compras.Card)
	require.Equal(t, "-7.50", Money(*compras.Card))
	require.Equal(t, "-20.00", Money(compras.Total))

	// purchases are shown, not reconciled
	require.Equal(t, "54.00", Money(snap.ExpectedCash))
	require.Equal(t, "34.00", Money(snap.PeriodTotal))
}
