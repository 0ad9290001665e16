// internal/health/ranking.go
package health

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// Rank упорядочивает успешно опрошенные эндпоинты по возрастанию средней задержки.
// Равные задержки упорядочены по ID, то есть по порядку добавления в пул.
// NaN означает ошибку в пробере и возвращается как ErrInvariantViolation.
func Rank(results []Result) ([]*endpoint.Endpoint, error) {
	ok := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if math.IsNaN(r.Latency) {
			return nil, fmt.Errorf("%w: NaN latency for %s", ErrInvariantViolation, r.Endpoint.URL)
		}
		ok = append(ok, r)
	}

	slices.SortStableFunc(ok, func(a, b Result) int {
		if c := cmp.Compare(a.Latency, b.Latency); c != 0 {
			return c
		}
		return cmp.Compare(a.Endpoint.ID, b.Endpoint.ID)
	})

	ranking := make([]*endpoint.Endpoint, len(ok))
	for i, r := range ok {
		ranking[i] = r.Endpoint
	}
	return ranking, nil
}

// IDs возвращает идентификаторы в порядке ранжирования
func IDs(ranking []*endpoint.Endpoint) []endpoint.ID {
	ids := make([]endpoint.ID, len(ranking))
	for i, ep := range ranking {
		ids[i] = ep.ID
	}
	return ids
}
