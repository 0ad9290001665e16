// internal/router/selector.go
package router

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// ErrNoUpstream нет ни одного Healthy или Degraded эндпоинта
var ErrNoUpstream = errors.New("no upstream available")

// RankingSource источник актуального рейтинга, обычно endpoint.Pool
type RankingSource interface {
	Ranking() []*endpoint.Endpoint
}

// Selector хранит последний снимок рейтинга и выбирает апстрим для запроса.
// Чтение снимка не блокируется обновлением.
type Selector struct {
	source   RankingSource
	snapshot atomic.Pointer[[]*endpoint.Endpoint]
	logger   *zap.Logger
}

// NewSelector создает селектор и сразу читает рейтинг
func NewSelector(source RankingSource, logger *zap.Logger) *Selector {
	s := &Selector{
		source: source,
		logger: logger.Named("selector"),
	}
	s.Refresh()
	return s
}

// Refresh перечитывает рейтинг из источника
func (s *Selector) Refresh() {
	ranking := s.source.Ranking()
	s.snapshot.Store(&ranking)
	s.logger.Debug("Ranking refreshed", zap.Int("endpoints", len(ranking)))
}

// Run обновляет снимок по каждому сигналу, пока ctx не отменен
func (s *Selector) Run(ctx context.Context, updates <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			s.Refresh()
		}
	}
}

// Ranking возвращает кэшированный снимок
func (s *Selector) Ranking() []*endpoint.Endpoint {
	p := s.snapshot.Load()
	if p == nil {
		return nil
	}
	out := make([]*endpoint.Endpoint, len(*p))
	copy(out, *p)
	return out
}

// Pick выбирает лучший Healthy эндпоинт, при их отсутствии лучший Degraded.
// Состояние проверяется в момент выбора: эндпоинт, умерший после снимка, не выдается.
func (s *Selector) Pick() (*endpoint.Endpoint, error) {
	p := s.snapshot.Load()
	if p == nil {
		return nil, ErrNoUpstream
	}

	var fallback *endpoint.Endpoint
	for _, ep := range *p {
		switch ep.Liveness() {
		case endpoint.Healthy:
			return ep, nil
		case endpoint.Degraded:
			if fallback == nil {
				fallback = ep
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoUpstream
}
