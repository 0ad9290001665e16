// internal/endpoint/types.go
package endpoint

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ID стабильный идентификатор эндпоинта внутри пула.
// Выдается по порядку добавления и используется для разрешения ничьих при ранжировании.
type ID uint32

// Kind тип протокола апстрима
type Kind int

const (
	KindHTTP Kind = iota
	KindWebSocket
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWebSocket:
		return "ws"
	default:
		return "unknown"
	}
}

// KindFromURL определяет тип протокола по схеме URL
func KindFromURL(rawURL string) Kind {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://") {
		return KindWebSocket
	}
	return KindHTTP
}

// Liveness состояние здоровья эндпоинта
type Liveness int

const (
	Healthy Liveness = iota
	Degraded
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Caller минимальный транспорт, которым эндпоинт измеряет задержку.
// Значение ответа не интерпретируется, важен только факт успеха.
type Caller interface {
	GetReferenceMetric(ctx context.Context) (uint64, error)
	Close() error
}

// Status снимок состояния эндпоинта
type Status struct {
	Latency             float64 // наносекунды, скользящее среднее
	HasLatency          bool
	Liveness            Liveness
	ConsecutiveFailures int
	LastProbe           time.Time
	LastError           error
}

// Transition описывает смену состояния после пробы
type Transition struct {
	From Liveness
	To   Liveness
}

// Changed сообщает, изменилось ли состояние
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Endpoint единица состояния одного апстрима
type Endpoint struct {
	ID     ID
	URL    string
	Kind   Kind
	caller Caller

	mu      sync.RWMutex
	status  Status
	samples []float64
	window  int

	probing sync.Mutex
}
