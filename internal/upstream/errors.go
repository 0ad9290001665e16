// internal/upstream/errors.go
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// FailureKind класс ошибки транспорта
type FailureKind int

const (
	// Unreachable ошибка соединения или транспорта
	Unreachable FailureKind = iota
	// ProtocolError некорректный или неожиданный ответ
	ProtocolError
	// Timeout превышено время ожидания вызова
	Timeout
)

func (k FailureKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case ProtocolError:
		return "protocol_error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformedResponse возникает, когда ответ апстрима не удалось разобрать
	ErrMalformedResponse = errors.New("malformed RPC response")

	// ErrUnexpectedResponse возникает при ответе на чужой запрос
	ErrUnexpectedResponse = errors.New("unexpected RPC response")

	// ErrClosed возникает при вызове закрытого клиента
	ErrClosed = errors.New("caller is closed")
)

// TransportError ошибка вызова апстрима с классом и контекстом
type TransportError struct {
	Kind   FailureKind
	URL    string
	Method string
	Err    error
}

// Error реализует интерфейс error
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s [%s] at %s: %v", e.Kind, e.Method, e.URL, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError классифицирует ошибку и оборачивает ее в TransportError
func NewTransportError(err error, url, method string) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{
		Kind:   Classify(err),
		URL:    url,
		Method: method,
		Err:    err,
	}
}

// KindOf возвращает класс ошибки. Неизвестные ошибки считаются Unreachable.
func KindOf(err error) FailureKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return Classify(err)
}

// Classify определяет класс ошибки транспорта
func Classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return ProtocolError
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return ProtocolError
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ProtocolError
	}

	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrUnexpectedResponse) {
		return ProtocolError
	}

	return Unreachable
}
