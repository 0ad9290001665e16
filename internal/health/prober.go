// internal/health/prober.go
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// Result исход раунда проб одного эндпоинта
type Result struct {
	Endpoint *endpoint.Endpoint
	Latency  float64 // среднее по раунду, нс
	Calls    int
	Err      error
}

// OK сообщает, что все K вызовов прошли
func (r Result) OK() bool {
	return r.Err == nil
}

// Prober измеряет задержку одного эндпоинта серией последовательных вызовов
type Prober struct {
	callTimeout time.Duration
	since       func(time.Time) time.Duration
}

// NewProber создает пробер. callTimeout ограничивает каждый отдельный вызов.
func NewProber(callTimeout time.Duration) *Prober {
	return &Prober{
		callTimeout: callTimeout,
		since:       time.Since,
	}
}

// Probe выполняет k вызовов подряд и возвращает среднюю задержку.
// Первый же сбой прерывает раунд: частичное среднее не возвращается.
func (p *Prober) Probe(ctx context.Context, ep *endpoint.Endpoint, k int) Result {
	if k < 1 {
		return Result{Endpoint: ep, Err: ErrInvalidCallCount}
	}

	durations := make([]float64, 0, k)
	for call := 1; call <= k; call++ {
		elapsed, err := p.measure(ctx, ep)
		if err != nil {
			return Result{Endpoint: ep, Err: &BatchAbortedError{
				EndpointID: ep.ID,
				URL:        ep.URL,
				Call:       call,
				Calls:      k,
				Err:        err,
			}}
		}
		durations = append(durations, float64(elapsed.Nanoseconds()))
	}

	mean := stat.Mean(durations, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return Result{Endpoint: ep, Err: fmt.Errorf("%w: mean latency %v for %s", ErrInvariantViolation, mean, ep.URL)}
	}
	return Result{Endpoint: ep, Latency: mean, Calls: k}
}

func (p *Prober) measure(ctx context.Context, ep *endpoint.Endpoint) (time.Duration, error) {
	callCtx := ctx
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	start := time.Now()
	if _, err := ep.Caller().GetReferenceMetric(callCtx); err != nil {
		return 0, err
	}
	return p.since(start), nil
}
