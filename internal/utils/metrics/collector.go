// internal/utils/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricType представляет тип метрики
type MetricType string

const (
	ProbeLatencyType MetricType = "probe_latency"
	ProbeFailureType MetricType = "probe_failures"
	LivenessType     MetricType = "endpoint_liveness"
	TransitionType   MetricType = "state_transitions"
	RankingSizeType  MetricType = "ranking_size"
)

const namespace = "rpc_balancer"

// Collector управляет набором метрик балансировщика. У каждого коллектора
// свой реестр, поэтому несколько экземпляров не конфликтуют.
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry

	probeLatency *prometheus.HistogramVec
	probeFailure *prometheus.CounterVec
	liveness     *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	rankingSize  prometheus.Gauge
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_latency_seconds",
				Help:      "Mean round-trip latency of a probe batch",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"endpoint"},
		),
		probeFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_failures_total",
				Help:      "Aborted probe batches by failure kind",
			},
			[]string{"endpoint", "kind"},
		),
		liveness: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "endpoint_liveness",
				Help:      "1 for the current liveness state of an endpoint, 0 otherwise",
			},
			[]string{"endpoint", "state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Liveness transitions by target state",
			},
			[]string{"endpoint", "to"},
		),
		rankingSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ranking_size",
				Help:      "Number of endpoints in the last ranking",
			},
		),
	}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		ProbeLatencyType: c.probeLatency,
		ProbeFailureType: c.probeFailure,
		LivenessType:     c.liveness,
		TransitionType:   c.transitions,
		RankingSizeType:  c.rankingSize,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry возвращает реестр для экспорта через /metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		case prometheus.Gauge:
			m.Set(0)
		}
		return true
	})
}
