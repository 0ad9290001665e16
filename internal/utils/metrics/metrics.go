// internal/utils/metrics/metrics.go
package metrics

import (
	"context"
	"time"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
)

var livenessStates = []endpoint.Liveness{endpoint.Healthy, endpoint.Degraded, endpoint.Dead}

// RecordProbeLatency записывает среднюю задержку успешного раунда
func (c *Collector) RecordProbeLatency(url string, latency time.Duration) {
	c.probeLatency.WithLabelValues(url).Observe(latency.Seconds())
}

// RecordProbeFailure учитывает прерванный раунд
func (c *Collector) RecordProbeFailure(url, kind string) {
	c.probeFailure.WithLabelValues(url, kind).Inc()
}

// SetLiveness выставляет текущее состояние эндпоинта
func (c *Collector) SetLiveness(url string, state endpoint.Liveness) {
	for _, s := range livenessStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.liveness.WithLabelValues(url, s.String()).Set(v)
	}
}

// RecordTransition учитывает смену состояния
func (c *Collector) RecordTransition(url string, to endpoint.Liveness) {
	c.transitions.WithLabelValues(url, to.String()).Inc()
	c.SetLiveness(url, to)
}

// SetRankingSize обновляет размер рейтинга
func (c *Collector) SetRankingSize(n int) {
	c.rankingSize.Set(float64(n))
}

// Subscribe подписывает коллектор на диагностические события шины
func (c *Collector) Subscribe(bus *events.Bus) []events.Subscription {
	return []events.Subscription{
		bus.SubscribeFunc(events.ProbeSucceeded, func(_ context.Context, e events.Event) error {
			if ev, ok := e.(events.ProbeSucceededEvent); ok {
				c.RecordProbeLatency(ev.URL, time.Duration(ev.LatencyNs))
			}
			return nil
		}),
		bus.SubscribeFunc(events.ProbeFailed, func(_ context.Context, e events.Event) error {
			if ev, ok := e.(events.ProbeFailedEvent); ok {
				c.RecordProbeFailure(ev.URL, ev.Kind)
			}
			return nil
		}),
		bus.SubscribeFunc(events.StateChanged, func(_ context.Context, e events.Event) error {
			if ev, ok := e.(events.StateChangedEvent); ok {
				c.RecordTransition(ev.URL, ev.To)
			}
			return nil
		}),
		bus.SubscribeFunc(events.RankingUpdated, func(_ context.Context, e events.Event) error {
			if ev, ok := e.(events.RankingUpdatedEvent); ok {
				c.SetRankingSize(len(ev.Ranking))
			}
			return nil
		}),
	}
}
