package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

func TestJournalRecentBeforeWrap(t *testing.T) {
	j := NewJournal(4)
	for _, m := range []string{"a", "b", "c"} {
		j.Add(Entry{Message: m})
	}

	assert.Equal(t, []string{"a", "b", "c"}, messages(j.Recent(0)))
	assert.Equal(t, []string{"b", "c"}, messages(j.Recent(2)))
}

func TestJournalRecentAfterWrap(t *testing.T) {
	j := NewJournal(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		j.Add(Entry{Message: m})
	}

	assert.Equal(t, []string{"c", "d", "e"}, messages(j.Recent(0)))
	assert.Equal(t, []string{"d", "e"}, messages(j.Recent(2)))
	assert.Equal(t, uint64(5), j.Total())
}

func TestJournalSubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Shutdown(context.Background())

	j := NewJournal(8)
	j.Subscribe(bus)

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, ProbeFailedEvent{
		BaseEvent: NewBase(ProbeFailed), EndpointID: 2, URL: "http://b", Kind: "timeout", Call: 1, Error: errors.New("deadline"),
	}))
	require.NoError(t, bus.PublishSync(ctx, StateChangedEvent{
		BaseEvent: NewBase(StateChanged), EndpointID: 2, URL: "http://b",
		From: endpoint.Healthy, To: endpoint.Degraded, ConsecutiveFailures: 1,
	}))
	// успешные пробы в журнал не пишутся
	require.NoError(t, bus.PublishSync(ctx, ProbeSucceededEvent{BaseEvent: NewBase(ProbeSucceeded)}))

	entries := j.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, ProbeFailed, entries[0].Type)
	assert.Equal(t, "timeout at call 1: deadline", entries[0].Message)
	assert.Equal(t, uint32(2), entries[1].EndpointID)
	assert.Equal(t, "healthy -> degraded after 1 consecutive failures", entries[1].Message)
}

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
