package endpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	closed bool
	err    error
}

func (c *closeRecorder) GetReferenceMetric(context.Context) (uint64, error) { return 1, nil }

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestPoolRejectsDuplicateURL(t *testing.T) {
	p := NewPool(3)

	a, err := p.Add("http://node-a", KindHTTP, nil)
	require.NoError(t, err)
	assert.Equal(t, ID(1), a.ID)

	_, err = p.Add("http://node-a/", KindHTTP, nil)
	assert.ErrorIs(t, err, ErrDuplicateURL)

	_, err = p.Add("  ", KindHTTP, nil)
	assert.ErrorIs(t, err, ErrEmptyURL)

	b, err := p.Add("ws://node-b", KindWebSocket, nil)
	require.NoError(t, err)
	assert.Equal(t, ID(2), b.ID)
	assert.Equal(t, 2, p.Len())

	got, err := p.Get(b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = p.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPoolRanking(t *testing.T) {
	p := NewPool(3)
	a, _ := p.Add("http://a", KindHTTP, nil)
	b, _ := p.Add("http://b", KindHTTP, nil)
	c, _ := p.Add("http://c", KindHTTP, nil)
	d, _ := p.Add("http://d", KindHTTP, nil)
	_, _ = p.Add("http://never-probed", KindHTTP, nil)

	require.NoError(t, a.UpdateLatency(10))
	require.NoError(t, b.UpdateLatency(5))
	require.NoError(t, c.UpdateLatency(10))
	require.NoError(t, d.UpdateLatency(1))

	d.MarkFailure(errors.New("x"), 2)
	d.MarkFailure(errors.New("x"), 2)
	require.Equal(t, Dead, d.Liveness())

	ranking := p.Ranking()
	require.Len(t, ranking, 3)
	assert.Equal(t, []ID{b.ID, a.ID, c.ID}, ids(ranking))

	// ранжирование детерминировано
	assert.Equal(t, ids(ranking), ids(p.Ranking()))
}

func TestPoolClose(t *testing.T) {
	p := NewPool(3)
	ok := &closeRecorder{}
	bad := &closeRecorder{err: errors.New("close failed")}
	_, _ = p.Add("http://a", KindHTTP, ok)
	_, _ = p.Add("http://b", KindHTTP, bad)

	err := p.Close()
	assert.Error(t, err)
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func ids(eps []*Endpoint) []ID {
	out := make([]ID, len(eps))
	for i, ep := range eps {
		out[i] = ep.ID
	}
	return out
}
