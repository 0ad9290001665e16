package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/rpc-balancer/internal/upstream"
)

func TestProbeMeanOfCallDurations(t *testing.T) {
	_, eps := newTestPool(t, &fakeCaller{})

	durations := []time.Duration{3 * time.Millisecond, 5 * time.Millisecond, 10 * time.Millisecond}
	p := NewProber(time.Second)
	i := 0
	p.since = func(time.Time) time.Duration {
		d := durations[i]
		i++
		return d
	}

	r := p.Probe(context.Background(), eps[0], len(durations))
	require.NoError(t, r.Err)
	assert.InDelta(t, float64(6*time.Millisecond), r.Latency, 1e-6)
	assert.Equal(t, 3, r.Calls)
}

func TestProbeCallsAreSequential(t *testing.T) {
	caller := &fakeCaller{delay: 5 * time.Millisecond}
	_, eps := newTestPool(t, caller)

	start := time.Now()
	r := NewProber(time.Second).Probe(context.Background(), eps[0], 4)
	require.NoError(t, r.Err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.EqualValues(t, 4, caller.calls.Load())
	assert.GreaterOrEqual(t, r.Latency, float64(5*time.Millisecond))
}

func TestProbeFailFast(t *testing.T) {
	boom := errors.New("connection refused")
	caller := &fakeCaller{fail: func(n int) error {
		if n == 2 {
			return boom
		}
		return nil
	}}
	_, eps := newTestPool(t, caller)

	r := NewProber(time.Second).Probe(context.Background(), eps[0], 5)
	require.Error(t, r.Err)
	assert.Zero(t, r.Latency)
	assert.EqualValues(t, 2, caller.calls.Load(), "remaining calls must not run")

	var aborted *BatchAbortedError
	require.ErrorAs(t, r.Err, &aborted)
	assert.Equal(t, 2, aborted.Call)
	assert.Equal(t, 5, aborted.Calls)
	assert.Equal(t, eps[0].ID, aborted.EndpointID)
	assert.ErrorIs(t, r.Err, boom)
	assert.Equal(t, upstream.Unreachable, aborted.Kind())
}

func TestProbeCallTimeout(t *testing.T) {
	_, eps := newTestPool(t, &fakeCaller{delay: time.Second})

	start := time.Now()
	r := NewProber(30*time.Millisecond).Probe(context.Background(), eps[0], 3)
	require.Error(t, r.Err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var aborted *BatchAbortedError
	require.ErrorAs(t, r.Err, &aborted)
	assert.Equal(t, upstream.Timeout, aborted.Kind())
	assert.Equal(t, 1, aborted.Call)
}

func TestProbeZeroCalls(t *testing.T) {
	caller := &fakeCaller{}
	_, eps := newTestPool(t, caller)

	r := NewProber(time.Second).Probe(context.Background(), eps[0], 0)
	assert.ErrorIs(t, r.Err, ErrInvalidCallCount)
	assert.Zero(t, caller.calls.Load())
}
