package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
)

// fakeCaller отвечает с задержкой delay; fail решает, упадет ли вызов номер n
type fakeCaller struct {
	delay     time.Duration
	ignoreCtx bool
	fail      func(n int) error
	calls     atomic.Int32
}

func (f *fakeCaller) GetReferenceMetric(ctx context.Context) (uint64, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return 0, err
		}
	}
	return uint64(n), nil
}

func (f *fakeCaller) Close() error { return nil }

func alwaysFail(err error) func(int) error {
	return func(int) error { return err }
}

// recorder собирает диагностические события
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestPool(t *testing.T, callers ...*fakeCaller) (*endpoint.Pool, []*endpoint.Endpoint) {
	t.Helper()
	pool := endpoint.NewPool(endpoint.DefaultWindow)
	eps := make([]*endpoint.Endpoint, 0, len(callers))
	for i, c := range callers {
		ep, err := pool.Add(fmt.Sprintf("http://node-%d.example", i), endpoint.KindHTTP, c)
		require.NoError(t, err)
		eps = append(eps, ep)
	}
	return pool, eps
}
