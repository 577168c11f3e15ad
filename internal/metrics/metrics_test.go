package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ prometheus.Gatherer = (*Registry)(nil)

func TestNewRegistry_RegistersRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["presetd_sessions_active"], "unlabelled gauges export from the start")
}

func TestRegistry_RecordRequest_StatusClasses(t *testing.T) {
	reg := NewRegistry()

	for _, code := range []int{200, 201, 302, 404, 409, 502} {
		reg.RecordRequest("POST", "/api/sessions/{id}/save", code, 0.01)
	}

	count := func(class string) float64 {
		return testutil.ToFloat64(reg.httpRequestsTotal.WithLabelValues("POST", "/api/sessions/{id}/save", class))
	}
	assert.Equal(t, 2.0, count("2xx"))
	assert.Equal(t, 1.0, count("3xx"))
	assert.Equal(t, 2.0, count("4xx"))
	assert.Equal(t, 1.0, count("5xx"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.httpRequestDuration))
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.httpRequestsInFlight))
}

func TestRegistry_LifecycleMetrics(t *testing.T) {
	reg := NewRegistry()

	reg.RecordLifecycleOp("save", "ok", 0.2)
	reg.RecordLifecycleOp("save", "name_conflict", 0.01)
	reg.RecordLifecycleOp("switch", "ok", 0.3)
	reg.RecordAutosave("ok")
	reg.RecordAutosave("skipped")
	reg.RecordDraftsPurged(3)
	reg.RecordDraftsPurged(0)
	reg.SetSessionsActive(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.lifecycleOps.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.lifecycleOps.WithLabelValues("save", "name_conflict")))
	assert.Equal(t, 2, testutil.CollectAndCount(reg.lifecycleDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.autosaves.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.draftsPurged))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.sessionsActive))
}

func TestRegistry_StoreAndBacktestMetrics(t *testing.T) {
	reg := NewRegistry()

	reg.ObserveStoreCall("load", "not_found", 0.002)
	reg.RecordBacktest("ok", 12)
	reg.SetJobsActive("backtest", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.storeCalls.WithLabelValues("load", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.backtestsTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(reg.jobsActive.WithLabelValues("backtest")))

	expected := `
# HELP presetd_backtests_total Total number of backtests
# TYPE presetd_backtests_total counter
presetd_backtests_total{status="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "presetd_backtests_total"))
}
