package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK = "ok"
)

// Metrics holds the Prometheus metrics for pools, the factory and the indexer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	opDuration    *prometheus.HistogramVec
	opsTotal      *prometheus.CounterVec
	liveExchanges *prometheus.GaugeVec
	poolsTotal    prometheus.Gauge
	indexedLogs   prometheus.Counter
	indexedBlock  prometheus.Gauge
}

// New creates and registers the metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nftswap_operation_duration_seconds",
			Help:    "Time taken to execute a state-changing operation, including custody calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"component", "operation"}),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nftswap_operations_total",
			Help: "Total number of operations, labeled by component, operation and result.",
		}, []string{"component", "operation", "result"}),
		liveExchanges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nftswap_live_exchanges",
			Help: "Number of live exchanges per pool.",
		}, []string{"pool"}),
		poolsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nftswap_pools",
			Help: "Number of pools registered in the factory.",
		}),
		indexedLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nftswap_indexed_logs_total",
			Help: "Total number of pool logs written by the indexer.",
		}),
		indexedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nftswap_indexer_checkpoint_block",
			Help: "Last block whose pool logs were written by the indexer.",
		}),
	}
	reg.MustRegister(m.opDuration, m.opsTotal, m.liveExchanges, m.poolsTotal, m.indexedLogs, m.indexedBlock)
	return m
}

// ObserveOp records one operation outcome.
func (m *Metrics) ObserveOp(component, operation string, started time.Time, result string) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(component, operation).Observe(time.Since(started).Seconds())
	m.opsTotal.WithLabelValues(component, operation, result).Inc()
}

// OpsTotal exposes the operations counter for a label set.
func (m *Metrics) OpsTotal(component, operation, result string) prometheus.Counter {
	return m.opsTotal.WithLabelValues(component, operation, result)
}

// SetLiveExchanges sets the live exchange gauge for a pool.
func (m *Metrics) SetLiveExchanges(pool string, n int) {
	if m == nil {
		return
	}
	m.liveExchanges.WithLabelValues(pool).Set(float64(n))
}

// LiveExchanges exposes the live exchange gauge for a pool.
func (m *Metrics) LiveExchanges(pool string) prometheus.Gauge {
	return m.liveExchanges.WithLabelValues(pool)
}

// SetPools sets the registered pool gauge.
func (m *Metrics) SetPools(n int) {
	if m == nil {
		return
	}
	m.poolsTotal.Set(float64(n))
}

// Pools exposes the registered pool gauge.
func (m *Metrics) Pools() prometheus.Gauge {
	return m.poolsTotal
}

// AddIndexedLogs counts logs written by the indexer.
func (m *Metrics) AddIndexedLogs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.indexedLogs.Add(float64(n))
}

// IndexedLogs exposes the indexed log counter.
func (m *Metrics) IndexedLogs() prometheus.Counter {
	return m.indexedLogs
}

// SetIndexedBlock records the indexer checkpoint.
func (m *Metrics) SetIndexedBlock(block uint64) {
	if m == nil {
		return
	}
	m.indexedBlock.Set(float64(block))
}

// IndexedBlock exposes the indexer checkpoint gauge.
func (m *Metrics) IndexedBlock() prometheus.Gauge {
	return m.indexedBlock
}
