// internal/events/journal.go
package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry запись журнала диагностики
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	EndpointID uint32    `json:"endpoint_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Message    string    `json:"message"`
}

// Journal кольцевой буфер последних диагностических событий
type Journal struct {
	mu           sync.Mutex
	ring         []Entry
	maxSize      int
	currentIndex int
	wrapped      bool
	total        uint64
}

// NewJournal создает журнал на maxSize записей
func NewJournal(maxSize int) *Journal {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Journal{
		ring:    make([]Entry, maxSize),
		maxSize: maxSize,
	}
}

// Subscribe подписывает журнал на события сбоев, переходов и ранжирования
func (j *Journal) Subscribe(bus *Bus) []Subscription {
	handler := HandlerFunc(func(_ context.Context, e Event) error {
		j.Add(entryOf(e))
		return nil
	})
	return []Subscription{
		bus.Subscribe(ProbeFailed, handler),
		bus.Subscribe(StateChanged, handler),
		bus.Subscribe(RankingUpdated, handler),
	}
}

// Add добавляет запись, вытесняя самую старую при переполнении
func (j *Journal) Add(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.ring[j.currentIndex] = entry
	j.currentIndex = (j.currentIndex + 1) % j.maxSize
	if j.currentIndex == 0 {
		j.wrapped = true
	}
	j.total++
}

// Recent возвращает до limit последних записей, от старых к новым.
// limit <= 0 означает все.
func (j *Journal) Recent(limit int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := j.currentIndex
	start := 0
	if j.wrapped {
		count = j.maxSize
		start = j.currentIndex
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	out := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, j.ring[(start+i)%j.maxSize])
	}
	return out
}

// Total число записей за все время
func (j *Journal) Total() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

func entryOf(e Event) Entry {
	entry := Entry{Timestamp: e.Timestamp(), Type: e.Type()}
	switch ev := e.(type) {
	case ProbeFailedEvent:
		entry.EndpointID = uint32(ev.EndpointID)
		entry.URL = ev.URL
		entry.Message = fmt.Sprintf("%s at call %d: %v", ev.Kind, ev.Call, ev.Error)
	case StateChangedEvent:
		entry.EndpointID = uint32(ev.EndpointID)
		entry.URL = ev.URL
		entry.Message = fmt.Sprintf("%s -> %s after %d consecutive failures", ev.From, ev.To, ev.ConsecutiveFailures)
	case RankingUpdatedEvent:
		entry.Message = fmt.Sprintf("%s: %d ranked of %d probed", ev.Reason, len(ev.Ranking), ev.Probed)
	case ProbeSucceededEvent:
		entry.EndpointID = uint32(ev.EndpointID)
		entry.URL = ev.URL
		entry.Message = fmt.Sprintf("%d calls, mean %s", ev.Calls, time.Duration(ev.LatencyNs))
	default:
		entry.Message = string(e.Type())
	}
	return entry
}
