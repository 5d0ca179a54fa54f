// Package presentation связывает потоки репозиториев с состоянием экранов.
// Здесь нет бизнес-логики: view-model подписывается на поток, хранит последнее
// значение и передаёт действия пользователя в репозиторий.
package presentation

import (
	"context"
	"sync"

	"github.com/magabrotheeeer/tourism-companion/internal/resource"
)

// State хранит последнее значение потока и сообщает об изменениях.
type State[T any] struct {
	mu       sync.RWMutex
	current  resource.Resource[T]
	has      bool
	onChange func(resource.Resource[T])
}

// NewState создаёт State. onChange вызывается на каждое новое значение и может быть nil.
func NewState[T any](onChange func(resource.Resource[T])) *State[T] {
	return &State[T]{onChange: onChange}
}

// Get возвращает последнее значение и признак того, что значение уже было.
func (s *State[T]) Get() (resource.Resource[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.has
}

func (s *State[T]) set(r resource.Resource[T]) {
	s.mu.Lock()
	s.current = r
	s.has = true
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(r)
	}
}

// Bind читает поток до его закрытия или отмены ctx и сохраняет каждое значение.
// Возвращает последнее полученное значение.
func (s *State[T]) Bind(ctx context.Context, ch <-chan resource.Resource[T]) resource.Resource[T] {
	var last resource.Resource[T]
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return last
			}
			last = r
			s.set(r)
		case <-ctx.Done():
			return last
		}
	}
}

// subscription — фоновая привязка потока к State.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func subscribe[T any](
	parent context.Context,
	state *State[T],
	open func(ctx context.Context) <-chan resource.Resource[T],
) *subscription {
	ctx, cancel := context.WithCancel(parent)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	ch := open(ctx)
	go func() {
		defer close(sub.done)
		state.Bind(ctx, ch)
	}()
	return sub
}

// stop отменяет подписку и ждёт завершения привязки.
func (s *subscription) stop() {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}
