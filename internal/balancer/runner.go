// internal/balancer/runner.go
package balancer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/rpc-balancer/internal/admin"
	"github.com/rovshanmuradov/rpc-balancer/internal/config"
	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
	"github.com/rovshanmuradov/rpc-balancer/internal/health"
	"github.com/rovshanmuradov/rpc-balancer/internal/router"
	"github.com/rovshanmuradov/rpc-balancer/internal/upstream"
	"github.com/rovshanmuradov/rpc-balancer/internal/utils/logger"
	"github.com/rovshanmuradov/rpc-balancer/internal/utils/metrics"
)

// Version строка версии для логов
const Version = "rpc-balancer 0.3.0"

const (
	eventBufferSize = 1024
	journalSize     = 512
)

// CallerFactory создает транспорт для записи конфигурации
type CallerFactory func(entry config.RPCEntry) endpoint.Caller

// Option настраивает Runner
type Option func(*Runner)

// WithCallerFactory подменяет создание транспортов
func WithCallerFactory(f CallerFactory) Option {
	return func(r *Runner) { r.newCaller = f }
}

// WithStartupBackOff подменяет стратегию повтора стартового ранжирования
func WithStartupBackOff(b backoff.BackOff) Option {
	return func(r *Runner) { r.startupBackOff = b }
}

// Runner собирает подсистему здоровья и управляет ее жизненным циклом
type Runner struct {
	config *config.Config
	log    *logger.Logger
	logger *zap.Logger

	bus        *events.Bus
	journal    *events.Journal
	collector  *metrics.Collector
	pool       *endpoint.Pool
	coord      *health.Coordinator
	classifier *health.Classifier
	selector   *router.Selector
	admin      *admin.Server
	shutdown   *ShutdownHandler

	newCaller      CallerFactory
	startupBackOff backoff.BackOff
}

// NewRunner создает пул эндпоинтов из конфигурации и связывает компоненты
func NewRunner(cfg *config.Config, log *logger.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{
		config:         cfg,
		log:            log,
		logger:         log.WithComponent("balancer"),
		startupBackOff: backoff.NewExponentialBackOff(),
	}
	r.newCaller = func(entry config.RPCEntry) endpoint.Caller {
		return upstream.NewCaller(entry.URL, entry.EndpointKind(), upstream.Options{
			RequestID: cfg.System.HealthCheckUserID,
			Headers:   entry.Headers,
		})
	}
	for _, opt := range opts {
		opt(r)
	}

	r.shutdown = NewShutdownHandler(r.logger, 30*time.Second)
	r.shutdown.AddFunc("logger", log.Sync)

	r.pool = endpoint.NewPool(cfg.MALength)
	for _, entry := range cfg.RPCList {
		caller := r.newCaller(entry)
		if _, err := r.pool.Add(entry.URL, entry.EndpointKind(), caller); err != nil {
			_ = caller.Close()
			_ = r.pool.Close()
			return nil, fmt.Errorf("failed to add endpoint %s: %w", entry.URL, err)
		}
	}
	r.shutdown.AddFunc("endpoint_pool", r.pool.Close)

	r.bus = events.NewBus(r.logger, eventBufferSize)
	r.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.bus.Shutdown(ctx)
	})

	r.collector = metrics.NewCollector()
	r.collector.Subscribe(r.bus)
	r.journal = events.NewJournal(journalSize)
	r.journal.Subscribe(r.bus)

	r.coord = health.NewCoordinator(health.Options{
		CallTimeout:      cfg.CallTimeout,
		BatchTimeout:     cfg.EffectiveBatchTimeout(),
		FailureThreshold: cfg.FailureThreshold,
		Events:           r.bus,
	}, r.logger)

	r.classifier = health.NewClassifier(r.pool, r.coord, health.ClassifierConfig{
		Interval:    cfg.HealthCheckInterval,
		Calls:       cfg.HealthCheckCalls,
		RerankCalls: cfg.MALength,
		Events:      r.bus,
	}, r.logger)

	r.selector = router.NewSelector(r.pool, r.logger)

	if cfg.AdminAddr != "" {
		r.admin = admin.NewServer(cfg.AdminAddr, r.selector, r.classifier, r.collector.Registry(), r.logger).
			WithJournal(r.journal)
	}

	r.logger.Info("Balancer initialized",
		zap.String("version", Version),
		zap.Int("endpoints", r.pool.Len()),
		zap.Int("ma_length", cfg.MALength),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Uint32("health_check_id", cfg.System.HealthCheckUserID))
	return r, nil
}

// Pool возвращает пул эндпоинтов
func (r *Runner) Pool() *endpoint.Pool {
	return r.pool
}

// Journal возвращает журнал диагностики
func (r *Runner) Journal() *events.Journal {
	return r.journal
}

// Selector возвращает селектор для маршрутизации запросов
func (r *Runner) Selector() *router.Selector {
	return r.selector
}

// RankAtStartup выполняет стартовое ранжирование. Пока ни один эндпоинт не выжил,
// раунд повторяется с экспоненциальной паузой в пределах startup_retry_max.
func (r *Runner) RankAtStartup(ctx context.Context) ([]*endpoint.Endpoint, error) {
	done := r.log.TrackPerformance("startup_ranking")
	defer done()

	op := func() ([]*endpoint.Endpoint, error) {
		ranking, err := r.coord.RankEndpointsAtStartup(ctx, r.pool.All(), r.config.MALength)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := health.RequireAny(ranking); err != nil {
			return nil, err
		}
		return ranking, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.startupBackOff),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("No endpoint survived startup probing, retrying",
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	}
	if r.config.StartupRetryMax > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.config.StartupRetryMax))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	ranking, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		return nil, err
	}
	r.selector.Refresh()
	return ranking, nil
}

// Run ранжирует эндпоинты и запускает фоновые компоненты до отмены ctx
func (r *Runner) Run(ctx context.Context) error {
	ranking, err := r.RankAtStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup ranking failed: %w", err)
	}
	r.logger.Info("Startup ranking complete",
		zap.Int("ranked", len(ranking)),
		zap.Int("configured", r.pool.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.classifier.Run(gctx)
	})
	g.Go(func() error {
		return r.selector.Run(gctx, r.classifier.Updates())
	})
	if r.admin != nil {
		g.Go(func() error {
			return r.admin.Run(gctx)
		})
	}
	return g.Wait()
}

// Shutdown освобождает ресурсы
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("Balancer shutting down gracefully")
	return r.shutdown.Shutdown(ctx)
}

// NotifyContext контекст, отменяемый сигналом остановки
func (r *Runner) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return r.shutdown.NotifyContext(parent)
}
