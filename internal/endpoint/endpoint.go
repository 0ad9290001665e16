// internal/endpoint/endpoint.go
package endpoint

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// MinFailureThreshold минимальный порог последовательных ошибок для перехода в Dead.
// Один сбой никогда не выводит эндпоинт из ротации.
const MinFailureThreshold = 2

// DefaultWindow размер окна скользящего среднего по умолчанию
const DefaultWindow = 5

// New создает новый эндпоинт. window задает число последних замеров в скользящем среднем.
func New(id ID, url string, kind Kind, caller Caller, window int) *Endpoint {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Endpoint{
		ID:      id,
		URL:     url,
		Kind:    kind,
		caller:  caller,
		window:  window,
		samples: make([]float64, 0, window),
		status:  Status{Liveness: Healthy},
	}
}

// Caller возвращает транспорт эндпоинта
func (e *Endpoint) Caller() Caller {
	return e.caller
}

// Status возвращает копию текущего состояния
func (e *Endpoint) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Latency возвращает текущую задержку и признак наличия хотя бы одного замера
func (e *Endpoint) Latency() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.Latency, e.status.HasLatency
}

// Liveness возвращает текущее состояние здоровья
func (e *Endpoint) Liveness() Liveness {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.Liveness
}

// UpdateLatency добавляет замер в окно и пересчитывает среднее.
// Изменение видно читателям сразу после возврата.
func (e *Endpoint) UpdateLatency(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return ErrInvalidLatency
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) == e.window {
		copy(e.samples, e.samples[1:])
		e.samples = e.samples[:e.window-1]
	}
	e.samples = append(e.samples, value)

	e.status.Latency = stat.Mean(e.samples, nil)
	e.status.HasLatency = true
	return nil
}

// MarkSuccess фиксирует успешную пробу. Любой успех полностью восстанавливает эндпоинт.
func (e *Endpoint) MarkSuccess() Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.status.Liveness
	e.status.Liveness = Healthy
	e.status.ConsecutiveFailures = 0
	e.status.LastProbe = time.Now()
	e.status.LastError = nil
	return Transition{From: from, To: Healthy}
}

// MarkFailure фиксирует неудачную пробу.
// Healthy переходит в Degraded сразу, в Dead только после threshold ошибок подряд.
func (e *Endpoint) MarkFailure(cause error, threshold int) Transition {
	if threshold < MinFailureThreshold {
		threshold = MinFailureThreshold
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.status.Liveness
	e.status.ConsecutiveFailures++
	e.status.LastProbe = time.Now()
	e.status.LastError = cause

	switch {
	case e.status.ConsecutiveFailures >= threshold:
		e.status.Liveness = Dead
	case from == Healthy:
		e.status.Liveness = Degraded
	}
	return Transition{From: from, To: e.status.Liveness}
}

// TryAcquireProbe захватывает эндпоинт для пробы. Возвращает false, если предыдущий раунд
// еще не завершен.
func (e *Endpoint) TryAcquireProbe() bool {
	return e.probing.TryLock()
}

// AcquireProbe ждет завершения текущего раунда и захватывает эндпоинт
func (e *Endpoint) AcquireProbe() {
	e.probing.Lock()
}

// ReleaseProbe освобождает эндпоинт после пробы
func (e *Endpoint) ReleaseProbe() {
	e.probing.Unlock()
}
