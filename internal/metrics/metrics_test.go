package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOp("pool", "trade", time.Now(), ResultOK)
	m.ObserveOp("pool", "trade", time.Now(), "NotOwner")
	m.ObserveOp("pool", "trade", time.Now(), ResultOK)
	m.SetLiveExchanges("0xpool", 3)
	m.SetPools(2)
	m.AddIndexedLogs(5)
	m.AddIndexedLogs(0)
	m.SetIndexedBlock(1200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpsTotal("pool", "trade", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal("pool", "trade", "NotOwner")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveExchanges("0xpool")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pools()))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.IndexedLogs()))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.IndexedBlock()))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOp("pool", "trade", time.Now(), ResultOK)
		m.SetLiveExchanges("0xpool", 1)
		m.SetPools(1)
		m.AddIndexedLogs(1)
		m.SetIndexedBlock(1)
	})
}
