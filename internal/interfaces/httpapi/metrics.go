package httpapi

import (
	"net/http"
	"sync"
	"time"

	"availsdk/internal/streaming"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "availsdk"

// Metrics records submitter, watcher and ledger activity in its own prometheus registry.
// It satisfies application.SubmitterObserver, application.WatcherObserver and
// kafka.ConsumerObserver.
type Metrics struct {
	registry *prometheus.Registry

	submissions       *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	latestBlock       prometheus.Gauge
	lastProcessed     prometheus.Gauge
	watchedBlocks     prometheus.Counter
	dataSubmissions   prometheus.Counter
	consumed          *prometheus.CounterVec
	consumerErrors    *prometheus.CounterVec

	mu      sync.RWMutex
	latest  uint64
	last    uint64
	started time.Time
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Extrinsics handed to the node.",
		}, []string{"call"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "resolved_total",
			Help:      "Submissions resolved, by final status and outcome.",
		}, []string{"call", "status", "outcome"}),
		submissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tx",
			Name:      "latency_seconds",
			Help:      "Time from signing to resolution.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"call"}),
		latestBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "watch",
			Name:      "latest_finalized_block",
			Help:      "Latest finalized block seen by the watcher.",
		}),
		lastProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "watch",
			Name:      "last_processed_block",
			Help:      "Last block whose submissions were published or stored.",
		}),
		watchedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "watch",
			Name:      "blocks_total",
			Help:      "Blocks scanned for data submissions.",
		}),
		dataSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "watch",
			Name:      "submissions_total",
			Help:      "Data submissions published.",
		}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "messages_total",
			Help:      "Stream messages consumed, by type.",
		}, []string{"type"}),
		consumerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Stream consumer errors, by stage.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions, m.resolutions, m.submissionLatency,
		m.latestBlock, m.lastProcessed, m.watchedBlocks, m.dataSubmissions,
		m.consumed, m.consumerErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnSubmitted(call string) {
	m.submissions.WithLabelValues(call).Inc()
}

func (m *Metrics) OnResolved(call string, status string, failed bool, latency time.Duration) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.resolutions.WithLabelValues(call, status, outcome).Inc()
	m.submissionLatency.WithLabelValues(call).Observe(latency.Seconds())
}

func (m *Metrics) OnLatestBlock(block uint64) {
	m.latestBlock.Set(float64(block))
	m.mu.Lock()
	m.latest = block
	m.mu.Unlock()
}

func (m *Metrics) OnBatchProcessed(fromBlock, toBlock uint64, submissionCount int) {
	if toBlock >= fromBlock {
		m.watchedBlocks.Add(float64(toBlock - fromBlock + 1))
	}
	m.dataSubmissions.Add(float64(submissionCount))
	m.SetLastProcessed(toBlock)
}

func (m *Metrics) SetLastProcessed(block uint64) {
	m.lastProcessed.Set(float64(block))
	m.mu.Lock()
	m.last = block
	m.mu.Unlock()
}

func (m *Metrics) OnConsumed(msg streaming.Message) {
	m.consumed.WithLabelValues(string(msg.Type)).Inc()
	switch msg.Type {
	case streaming.MessageTypeBlock:
		m.SetLastProcessed(msg.BlockNumber)
	case streaming.MessageTypeReorg:
		if msg.FromBlock > 0 {
			m.SetLastProcessed(msg.FromBlock - 1)
		} else {
			m.SetLastProcessed(0)
		}
	}
}

func (m *Metrics) OnFetchError()  { m.consumerErrors.WithLabelValues("fetch").Inc() }
func (m *Metrics) OnDecodeError() { m.consumerErrors.WithLabelValues("decode").Inc() }
func (m *Metrics) OnApplyError()  { m.consumerErrors.WithLabelValues("apply").Inc() }

type Snapshot struct {
	Uptime        time.Duration
	LatestBlock   uint64
	LastProcessed uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Uptime: time.Since(m.started), LatestBlock: m.latest, LastProcessed: m.last}
}
