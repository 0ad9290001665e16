// internal/health/fanout.go
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
	"github.com/rovshanmuradov/rpc-balancer/internal/upstream"
)

// Options параметры координатора
type Options struct {
	CallTimeout      time.Duration
	BatchTimeout     time.Duration // 0: K * CallTimeout
	FailureThreshold int
	Events           events.Publisher
}

// Coordinator запускает пробы по всем эндпоинтам параллельно и применяет исходы к их состоянию
type Coordinator struct {
	prober       *Prober
	callTimeout  time.Duration
	batchTimeout time.Duration
	threshold    int
	events       events.Publisher
	logger       *zap.Logger
}

// NewCoordinator создает координатор
func NewCoordinator(opts Options, logger *zap.Logger) *Coordinator {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.FailureThreshold < endpoint.MinFailureThreshold {
		opts.FailureThreshold = endpoint.MinFailureThreshold
	}
	return &Coordinator{
		prober:       NewProber(opts.CallTimeout),
		callTimeout:  opts.CallTimeout,
		batchTimeout: opts.BatchTimeout,
		threshold:    opts.FailureThreshold,
		events:       opts.Events,
		logger:       logger.Named("coordinator"),
	}
}

// ProbeAll опрашивает каждый эндпоинт в отдельной горутине и собирает ровно один
// исход на эндпоинт в порядке завершения. Сбой одного эндпоинта не влияет на остальные.
// Задачи, не уложившиеся в общий дедлайн раунда, считаются Timeout.
func (c *Coordinator) ProbeAll(ctx context.Context, eps []*endpoint.Endpoint, k int) []Result {
	if len(eps) == 0 {
		return nil
	}

	batchCtx, cancel := c.batchContext(ctx, k)
	defer cancel()

	results := make(chan Result, len(eps))
	var wg sync.WaitGroup
	for _, ep := range eps {
		wg.Add(1)
		go func(ep *endpoint.Endpoint) {
			defer wg.Done()
			ep.AcquireProbe()
			defer ep.ReleaseProbe()
			results <- c.prober.Probe(batchCtx, ep, k)
		}(ep)
	}

	// канал закрывается, когда все продюсеры отработали
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, len(eps))
	pending := make(map[endpoint.ID]*endpoint.Endpoint, len(eps))
	for _, ep := range eps {
		pending[ep.ID] = ep
	}

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return out
			}
			delete(pending, r.Endpoint.ID)
			c.apply(ctx, r)
			out = append(out, r)
		case <-batchCtx.Done():
			if ctx.Err() != nil {
				// остановка процесса: недоделанные пробы не считаются сбоями
				return out
			}
			// готовые к этому моменту исходы не считаются опоздавшими
			for drained := false; !drained; {
				select {
				case r, ok := <-results:
					if !ok {
						return out
					}
					delete(pending, r.Endpoint.ID)
					c.apply(ctx, r)
					out = append(out, r)
				default:
					drained = true
				}
			}
			for _, ep := range pending {
				r := Result{Endpoint: ep, Err: &BatchAbortedError{
					EndpointID: ep.ID,
					URL:        ep.URL,
					Call:       1,
					Calls:      k,
					Err:        batchCtx.Err(),
				}}
				c.apply(ctx, r)
				out = append(out, r)
			}
			return out
		}
	}
}

// ProbeOne опрашивает один эндпоинт и применяет исход.
// Вызывающий должен держать захват пробы эндпоинта.
func (c *Coordinator) ProbeOne(ctx context.Context, ep *endpoint.Endpoint, k int) Result {
	r := c.prober.Probe(ctx, ep, k)
	c.apply(ctx, r)
	return r
}

// RankEndpointsAtStartup выполняет стартовый раунд из k вызовов на эндпоинт и
// возвращает выживших по возрастанию задержки. Пустой вход дает пустой результат без ошибки,
// пустой результат тоже не ошибка: решение принимает вызывающий (см. RequireAny).
func (c *Coordinator) RankEndpointsAtStartup(ctx context.Context, eps []*endpoint.Endpoint, k int) ([]*endpoint.Endpoint, error) {
	if len(eps) == 0 {
		c.logger.Warn("No RPCs supplied")
		return []*endpoint.Endpoint{}, nil
	}
	if k < 1 {
		return nil, ErrInvalidCallCount
	}

	results := c.ProbeAll(ctx, eps, k)
	for _, r := range results {
		if errors.Is(r.Err, ErrInvariantViolation) {
			return nil, r.Err
		}
	}

	ranking, err := Rank(results)
	if err != nil {
		c.logger.Error("Ranking failed", zap.Error(err))
		return nil, err
	}

	for _, ep := range ranking {
		latency, _ := ep.Latency()
		c.logger.Info("Endpoint ranked",
			zap.String("url", ep.URL),
			zap.Float64("latency_ns", latency),
			zap.Duration("latency", time.Duration(latency)))
	}
	c.publish(events.RankingUpdatedEvent{
		BaseEvent: events.NewBase(events.RankingUpdated),
		Ranking:   IDs(ranking),
		Probed:    len(results),
		Reason:    "startup",
	})
	return ranking, nil
}

// RequireAny возвращает ErrEmptyPool, если ранжировать некого
func RequireAny(ranking []*endpoint.Endpoint) error {
	if len(ranking) == 0 {
		return ErrEmptyPool
	}
	return nil
}

func (c *Coordinator) batchContext(ctx context.Context, k int) (context.Context, context.CancelFunc) {
	switch {
	case c.batchTimeout > 0:
		return context.WithTimeout(ctx, c.batchTimeout)
	case c.callTimeout > 0 && k > 0:
		return context.WithTimeout(ctx, time.Duration(k)*c.callTimeout)
	default:
		return context.WithCancel(ctx)
	}
}

// apply переносит исход пробы в состояние эндпоинта
func (c *Coordinator) apply(ctx context.Context, r Result) {
	ep := r.Endpoint
	log := c.logger.With(zap.Uint32("endpoint_id", uint32(ep.ID)), zap.String("url", ep.URL))

	if r.OK() {
		if err := ep.UpdateLatency(r.Latency); err != nil {
			log.Error("Rejected latency sample", zap.Float64("latency_ns", r.Latency), zap.Error(err))
			return
		}
		c.publish(events.ProbeSucceededEvent{
			BaseEvent:  events.NewBase(events.ProbeSucceeded),
			EndpointID: ep.ID,
			URL:        ep.URL,
			Calls:      r.Calls,
			LatencyNs:  r.Latency,
		})
		c.transition(ep, ep.MarkSuccess())
		return
	}

	switch {
	case errors.Is(r.Err, ErrInvariantViolation):
		log.Error("Probe produced invalid latency", zap.Error(r.Err))
		return
	case errors.Is(r.Err, ErrInvalidCallCount):
		log.Error("Probe misconfigured", zap.Error(r.Err))
		return
	case ctx.Err() != nil:
		log.Debug("Probe interrupted by shutdown", zap.Error(r.Err))
		return
	}

	kind := upstream.KindOf(r.Err)
	call := 0
	var aborted *BatchAbortedError
	if errors.As(r.Err, &aborted) {
		call = aborted.Call
	}
	log.Warn("Probe failed",
		zap.String("kind", kind.String()),
		zap.Int("call", call),
		zap.Error(r.Err))
	c.publish(events.ProbeFailedEvent{
		BaseEvent:  events.NewBase(events.ProbeFailed),
		EndpointID: ep.ID,
		URL:        ep.URL,
		Kind:       kind.String(),
		Call:       call,
		Error:      r.Err,
	})
	c.transition(ep, ep.MarkFailure(r.Err, c.threshold))
}

func (c *Coordinator) transition(ep *endpoint.Endpoint, tr endpoint.Transition) {
	if !tr.Changed() {
		return
	}
	st := ep.Status()
	fields := []zap.Field{
		zap.Uint32("endpoint_id", uint32(ep.ID)),
		zap.String("url", ep.URL),
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.Int("consecutive_failures", st.ConsecutiveFailures),
	}
	if tr.To == endpoint.Dead {
		c.logger.Warn("Endpoint is dead", fields...)
	} else {
		c.logger.Info("Endpoint state changed", fields...)
	}
	c.publish(events.StateChangedEvent{
		BaseEvent:           events.NewBase(events.StateChanged),
		EndpointID:          ep.ID,
		URL:                 ep.URL,
		From:                tr.From,
		To:                  tr.To,
		ConsecutiveFailures: st.ConsecutiveFailures,
	})
}

func (c *Coordinator) publish(ev events.Event) {
	if err := c.events.Publish(ev); err != nil {
		c.logger.Debug("Diagnostic event dropped",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}
