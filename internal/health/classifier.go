// internal/health/classifier.go
package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
)

// ClassifierConfig параметры фоновой проверки
type ClassifierConfig struct {
	Interval    time.Duration
	Calls       int // вызовов за тик
	RerankCalls int // вызовов на эндпоинт при ручном переранжировании
	Events      events.Publisher
}

// Classifier периодически опрашивает каждый эндпоинт по своему таймеру и
// переводит его между Healthy, Degraded и Dead. Ошибки проб наружу не выходят.
type Classifier struct {
	pool        *endpoint.Pool
	coord       *Coordinator
	interval    time.Duration
	calls       int
	rerankCalls int
	events      events.Publisher
	logger      *zap.Logger

	updates chan struct{}
	rerank  singleflight.Group
}

// NewClassifier создает классификатор поверх пула и координатора
func NewClassifier(pool *endpoint.Pool, coord *Coordinator, cfg ClassifierConfig, logger *zap.Logger) *Classifier {
	if cfg.Calls < 1 {
		cfg.Calls = 1
	}
	if cfg.RerankCalls < 1 {
		cfg.RerankCalls = cfg.Calls
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	return &Classifier{
		pool:        pool,
		coord:       coord,
		interval:    cfg.Interval,
		calls:       cfg.Calls,
		rerankCalls: cfg.RerankCalls,
		events:      cfg.Events,
		logger:      logger.Named("classifier"),
		updates:     make(chan struct{}, 1),
	}
}

// Updates сигнализирует, что состояние пула изменилось и рейтинг стоит перечитать.
// Сигналы схлопываются: один непрочитанный сигнал покрывает любое число изменений.
func (c *Classifier) Updates() <-chan struct{} {
	return c.updates
}

// Run запускает по одной горутине на эндпоинт и блокируется до отмены ctx
func (c *Classifier) Run(ctx context.Context) error {
	if c.interval <= 0 {
		return errors.New("health check interval must be positive")
	}

	eps := c.pool.All()
	c.logger.Info("Starting health classifier",
		zap.Int("endpoints", len(eps)),
		zap.Duration("interval", c.interval),
		zap.Int("calls", c.calls))

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		g.Go(func() error {
			ticker := time.NewTicker(c.interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					c.Tick(gctx, ep)
				}
			}
		})
	}

	err := g.Wait()
	c.logger.Info("Health classifier stopped")
	return err
}

// Tick выполняет один плановый раунд для эндпоинта.
// Если предыдущий раунд еще идет, тик пропускается и возвращается false.
func (c *Classifier) Tick(ctx context.Context, ep *endpoint.Endpoint) bool {
	if !ep.TryAcquireProbe() {
		c.logger.Debug("Previous probe still running, skipping tick",
			zap.Uint32("endpoint_id", uint32(ep.ID)),
			zap.String("url", ep.URL))
		return false
	}
	defer ep.ReleaseProbe()

	c.coord.ProbeOne(ctx, ep, c.calls)
	c.signal()
	return true
}

// Rerank вне расписания опрашивает весь пул и возвращает актуальный рейтинг.
// Параллельные вызовы объединяются в один раунд. Пустой рейтинг дает ErrEmptyPool.
func (c *Classifier) Rerank(ctx context.Context) ([]*endpoint.Endpoint, error) {
	v, err, shared := c.rerank.Do("rerank", func() (interface{}, error) {
		results := c.coord.ProbeAll(ctx, c.pool.All(), c.rerankCalls)
		for _, r := range results {
			if errors.Is(r.Err, ErrInvariantViolation) {
				return nil, r.Err
			}
		}
		c.signal()

		ranking := c.pool.Ranking()
		if err := c.events.Publish(events.RankingUpdatedEvent{
			BaseEvent: events.NewBase(events.RankingUpdated),
			Ranking:   IDs(ranking),
			Probed:    len(results),
			Reason:    "rerank",
		}); err != nil {
			c.logger.Debug("Diagnostic event dropped", zap.Error(err))
		}
		return ranking, RequireAny(ranking)
	})
	if shared {
		c.logger.Debug("Rerank joined an in-flight round")
	}

	ranking, _ := v.([]*endpoint.Endpoint)
	// копия: результат singleflight общий для всех ожидающих
	out := make([]*endpoint.Endpoint, len(ranking))
	copy(out, ranking)
	return out, err
}

func (c *Classifier) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
