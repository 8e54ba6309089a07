package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("caja:petty_cash_integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("caja:petty_cash_integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("caja:petty_cash_integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("caja:petty_cash_integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("caja:petty_cash_integrity")))
}

func TestDriftAndPurgeCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDrift(4, 2)
	m.AddDrift(0, 1)
	m.AddDrift(4, 0)
	m.AddPurged(7)

	require.Equal(t, 2.0, testutil.ToFloat64(m.drift.WithLabelValues("4")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("0")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.purged))

	var nilMetrics *Metrics
	nilMetrics.AddDrift(1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
