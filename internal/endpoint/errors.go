// internal/endpoint/errors.go
package endpoint

import "errors"

var (
	// ErrDuplicateURL возникает при повторном добавлении того же URL
	ErrDuplicateURL = errors.New("endpoint with this url already exists")

	// ErrEmptyURL возникает при добавлении эндпоинта без адреса
	ErrEmptyURL = errors.New("endpoint url is empty")

	// ErrInvalidLatency возникает при попытке записать NaN, бесконечность или отрицательную задержку
	ErrInvalidLatency = errors.New("invalid latency value")

	// ErrNotFound возникает, когда эндпоинта с таким ID нет в пуле
	ErrNotFound = errors.New("endpoint not found")
)
