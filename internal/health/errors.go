// internal/health/errors.go
package health

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/upstream"
)

var (
	// ErrInvalidCallCount возникает при K < 1
	ErrInvalidCallCount = errors.New("probe call count must be at least 1")

	// ErrEmptyPool ни один эндпоинт не пережил раунд, маршрутизировать некуда
	ErrEmptyPool = errors.New("no upstream endpoint survived probing")

	// ErrInvariantViolation внутренняя ошибка: некорректная задержка дошла до ранжирования
	ErrInvariantViolation = errors.New("invariant violation")
)

// BatchAbortedError раунд проб эндпоинта остановлен на первом неудачном вызове
type BatchAbortedError struct {
	EndpointID endpoint.ID
	URL        string
	Call       int // номер неудачного вызова, с 1
	Calls      int
	Err        error
}

func (e *BatchAbortedError) Error() string {
	return fmt.Sprintf("probe batch aborted for %s at call %d/%d: %v", e.URL, e.Call, e.Calls, e.Err)
}

func (e *BatchAbortedError) Unwrap() error {
	return e.Err
}

// Kind класс ошибки транспорта, вызвавшей остановку
func (e *BatchAbortedError) Kind() upstream.FailureKind {
	return upstream.KindOf(e.Err)
}
