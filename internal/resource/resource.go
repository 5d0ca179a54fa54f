// Package resource содержит обёртку результата операции репозитория.
// Каждая операция отдаёт не сами данные, а Resource в одном из трёх состояний:
// загрузка, успех с данными или ошибка с сообщением для пользователя.
package resource

// State — состояние результата.
type State int

const (
	// Loading — операция выполняется
	Loading State = iota
	// Success — операция завершилась успешно, Data заполнено
	Success
	// Error — операция завершилась ошибкой, Message содержит текст для пользователя
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "unknown"
}

// Resource — результат операции в одном из трёх состояний.
type Resource[T any] struct {
	State   State
	Data    T
	Message string
}

// NewLoading возвращает Resource в состоянии загрузки.
func NewLoading[T any]() Resource[T] {
	return Resource[T]{State: Loading}
}

// NewSuccess возвращает Resource с данными.
func NewSuccess[T any](data T) Resource[T] {
	return Resource[T]{State: Success, Data: data}
}

// NewError возвращает Resource с сообщением об ошибке.
func NewError[T any](msg string) Resource[T] {
	return Resource[T]{State: Error, Message: msg}
}

// IsLoading сообщает, что операция ещё выполняется.
func (r Resource[T]) IsLoading() bool { return r.State == Loading }

// IsSuccess сообщает, что операция завершилась успешно.
func (r Resource[T]) IsSuccess() bool { return r.State == Success }

// IsError сообщает, что операция завершилась ошибкой.
func (r Resource[T]) IsError() bool { return r.State == Error }

// Send отправляет значение в канал, пока контекст подписчика жив.
// Возвращает false, если подписчик отключился.
func Send[T any](done <-chan struct{}, out chan<- Resource[T], r Resource[T]) bool {
	select {
	case out <- r:
		return true
	case <-done:
		return false
	}
}
