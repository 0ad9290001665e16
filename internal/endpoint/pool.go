// internal/endpoint/pool.go
package endpoint

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"
)

// Pool владеет всеми эндпоинтами. Эндпоинты никогда не удаляются:
// мертвый эндпоинт остается в пуле, чтобы вернуться в ротацию после восстановления.
type Pool struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
	byID      map[ID]*Endpoint
	byURL     map[string]*Endpoint
	window    int
	nextID    ID
}

// NewPool создает пустой пул. window размер окна скользящего среднего для новых эндпоинтов.
func NewPool(window int) *Pool {
	return &Pool{
		byID:   make(map[ID]*Endpoint),
		byURL:  make(map[string]*Endpoint),
		window: window,
		nextID: 1,
	}
}

// Add добавляет эндпоинт в пул
func (p *Pool) Add(url string, kind Kind, caller Caller) (*Endpoint, error) {
	key := normalizeURL(url)
	if key == "" {
		return nil, ErrEmptyURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byURL[key]; exists {
		return nil, ErrDuplicateURL
	}

	ep := New(p.nextID, url, kind, caller, p.window)
	p.nextID++

	p.endpoints = append(p.endpoints, ep)
	p.byID[ep.ID] = ep
	p.byURL[key] = ep
	return ep, nil
}

// Get возвращает эндпоинт по ID
func (p *Pool) Get(id ID) (*Endpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ep, ok := p.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ep, nil
}

// All возвращает все эндпоинты в порядке добавления
func (p *Pool) All() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Len возвращает число эндпоинтов в пуле
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// Ranking строит упорядоченный снимок для роутера: без мертвых и ни разу не измеренных,
// по возрастанию задержки, ничьи по порядку добавления.
// Безопасно вызывать параллельно с классификатором.
func (p *Pool) Ranking() []*Endpoint {
	type entry struct {
		ep      *Endpoint
		latency float64
	}

	all := p.All()
	entries := make([]entry, 0, len(all))
	for _, ep := range all {
		st := ep.Status()
		if st.Liveness == Dead || !st.HasLatency {
			continue
		}
		entries = append(entries, entry{ep: ep, latency: st.Latency})
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(a.latency, b.latency); c != 0 {
			return c
		}
		return cmp.Compare(a.ep.ID, b.ep.ID)
	})

	out := make([]*Endpoint, len(entries))
	for i, e := range entries {
		out[i] = e.ep
	}
	return out
}

// Close закрывает транспорты всех эндпоинтов
func (p *Pool) Close() error {
	var errs []error
	for _, ep := range p.All() {
		if ep.caller == nil {
			continue
		}
		if err := ep.caller.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}
