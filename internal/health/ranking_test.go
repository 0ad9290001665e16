package health

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

func TestRankOrdersByLatency(t *testing.T) {
	_, eps := newTestPool(t, &fakeCaller{}, &fakeCaller{}, &fakeCaller{}, &fakeCaller{})

	results := []Result{
		{Endpoint: eps[0], Latency: 30},
		{Endpoint: eps[1], Err: errors.New("down")},
		{Endpoint: eps[2], Latency: 10},
		{Endpoint: eps[3], Latency: 20},
	}

	ranking, err := Rank(results)
	require.NoError(t, err)
	assert.Equal(t, []endpoint.ID{eps[2].ID, eps[3].ID, eps[0].ID}, IDs(ranking))
}

func TestRankTiesKeepInsertionOrder(t *testing.T) {
	_, eps := newTestPool(t, &fakeCaller{}, &fakeCaller{}, &fakeCaller{})

	// порядок завершения обратный порядку добавления
	results := []Result{
		{Endpoint: eps[2], Latency: 7},
		{Endpoint: eps[1], Latency: 7},
		{Endpoint: eps[0], Latency: 7},
	}

	ranking, err := Rank(results)
	require.NoError(t, err)
	assert.Equal(t, []endpoint.ID{eps[0].ID, eps[1].ID, eps[2].ID}, IDs(ranking))
}

func TestRankRejectsNaN(t *testing.T) {
	_, eps := newTestPool(t, &fakeCaller{}, &fakeCaller{})

	_, err := Rank([]Result{
		{Endpoint: eps[0], Latency: 1},
		{Endpoint: eps[1], Latency: math.NaN()},
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestRankEmpty(t *testing.T) {
	ranking, err := Rank(nil)
	require.NoError(t, err)
	assert.Empty(t, ranking)
}
