// internal/upstream/caller.go
package upstream

import (
	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// Options параметры создания транспорта
type Options struct {
	// RequestID зарезервированный id health-check запросов для WebSocket
	RequestID uint32
	// Headers дополнительные HTTP-заголовки, например ключ провайдера
	Headers map[string]string
}

// NewCaller создает транспорт нужного типа для эндпоинта
func NewCaller(url string, kind endpoint.Kind, opts Options) endpoint.Caller {
	switch kind {
	case endpoint.KindWebSocket:
		return NewWSCaller(url, opts.RequestID)
	default:
		return NewHTTPCaller(url, opts.Headers)
	}
}
