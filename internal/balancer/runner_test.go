package balancer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/rpc-balancer/internal/config"
	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
	"github.com/rovshanmuradov/rpc-balancer/internal/health"
	"github.com/rovshanmuradov/rpc-balancer/internal/utils/logger"
)

// scriptedCaller падает на первых failures вызовах
type scriptedCaller struct {
	failures int32
	delay    time.Duration
	calls    atomic.Int32
	closed   atomic.Bool
}

func (s *scriptedCaller) GetReferenceMetric(ctx context.Context) (uint64, error) {
	n := s.calls.Add(1)
	if n <= s.failures {
		return 0, errors.New("connection refused")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return uint64(n), nil
}

func (s *scriptedCaller) Close() error {
	s.closed.Store(true)
	return nil
}

func testConfig(urls ...string) *config.Config {
	cfg := &config.Config{
		MALength:            2,
		HealthCheckCalls:    1,
		HealthCheckInterval: 10 * time.Millisecond,
		FailureThreshold:    3,
		CallTimeout:         time.Second,
		System:              config.DefaultSystemIDs(),
	}
	for _, u := range urls {
		cfg.RPCList = append(cfg.RPCList, config.RPCEntry{URL: u, Kind: "http"})
	}
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, callers map[string]*scriptedCaller) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, logger.NewNop(),
		WithCallerFactory(func(entry config.RPCEntry) endpoint.Caller {
			return callers[entry.URL]
		}),
		WithStartupBackOff(backoff.NewConstantBackOff(5*time.Millisecond)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func TestRunnerStartupRanking(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://slow.example": {delay: 20 * time.Millisecond},
		"http://fast.example": {delay: time.Millisecond},
		"http://down.example": {failures: 1 << 30},
	}
	r := newTestRunner(t, testConfig("http://slow.example", "http://fast.example", "http://down.example"), callers)

	ranking, err := r.RankAtStartup(context.Background())
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "http://fast.example", ranking[0].URL)
	assert.Equal(t, "http://slow.example", ranking[1].URL)

	picked, err := r.Selector().Pick()
	require.NoError(t, err)
	assert.Equal(t, "http://fast.example", picked.URL)

	// сбой и переход down.example попадают в журнал через шину
	require.Eventually(t, func() bool {
		for _, e := range r.Journal().Recent(0) {
			if e.Type == events.StateChanged && e.URL == "http://down.example" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerStartupRetriesUntilEndpointRecovers(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://flaky.example": {failures: 2},
	}
	cfg := testConfig("http://flaky.example")
	cfg.StartupRetryMax = 5 * time.Second
	r := newTestRunner(t, cfg, callers)

	ranking, err := r.RankAtStartup(context.Background())
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, endpoint.Healthy, ranking[0].Liveness())
	assert.EqualValues(t, 4, callers["http://flaky.example"].calls.Load())
}

func TestRunnerStartupEmptyPool(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://down.example": {failures: 1 << 30},
	}
	r := newTestRunner(t, testConfig("http://down.example"), callers)

	_, err := r.RankAtStartup(context.Background())
	assert.ErrorIs(t, err, health.ErrEmptyPool)

	err = r.Run(context.Background())
	assert.ErrorIs(t, err, health.ErrEmptyPool)
}

func TestRunnerRunUntilCancelled(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://a.example": {},
		"http://b.example": {},
	}
	r := newTestRunner(t, testConfig("http://a.example", "http://b.example"), callers)

	ctx, cancel := context.WithCancel(context.Background())
	var runErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = r.Run(ctx)
	}()

	// стартовый раунд по 2 вызова, дальше тики классификатора
	require.Eventually(t, func() bool {
		return callers["http://a.example"].calls.Load() > 4
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	assert.NoError(t, runErr)
	assert.Len(t, r.Selector().Ranking(), 2)
}

func TestRunnerShutdownClosesCallers(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://a.example": {},
	}
	r, err := NewRunner(testConfig("http://a.example"), logger.NewNop(),
		WithCallerFactory(func(entry config.RPCEntry) endpoint.Caller { return callers[entry.URL] }))
	require.NoError(t, err)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, callers["http://a.example"].closed.Load())
}

func TestNewRunnerRejectsDuplicateURL(t *testing.T) {
	callers := map[string]*scriptedCaller{
		"http://a.example":  {},
		"http://a.example/": {},
	}
	_, err := NewRunner(testConfig("http://a.example", "http://a.example/"), logger.NewNop(),
		WithCallerFactory(func(entry config.RPCEntry) endpoint.Caller { return callers[entry.URL] }))
	assert.ErrorIs(t, err, endpoint.ErrDuplicateURL)
}
