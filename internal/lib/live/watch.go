package live

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/tourism-companion/internal/resource"
)

// ErrNoValue возвращается запросом, когда отправлять подписчику нечего
// (например, строка-синглтон ещё не записана). Такой результат пропускается.
var ErrNoValue = errors.New("live: no value")

// Query — запрос к хранилищу, результат которого отдаётся подписчику.
type Query[T any] func(ctx context.Context) (T, error)

// Emitter отправляет значение подписчику. Возвращает false, если подписчик отключился.
type Emitter[T any] func(resource.Resource[T]) bool

// Step выполняется один раз после первой отправки, до ожидания изменений.
// Через emit шаг может отправить подписчику собственный результат (например, ошибку).
type Step[T any] func(ctx context.Context, emit Emitter[T])

// Watch выполняет запрос, отправляет результат в out и повторяет запрос после каждого
// изменения тем. После первой отправки однократно выполняется then (если задан).
// Все шаги идут последовательно в одной горутине вызывающего. Функция возвращается,
// когда отменён ctx; out она не закрывает.
//
// mapErr переводит ошибку запроса в текст для пользователя.
func Watch[T any](
	ctx context.Context,
	n *Notifier,
	topics []Topic,
	query Query[T],
	mapErr func(error) string,
	out chan<- resource.Resource[T],
	then Step[T],
) {
	emit := func(r resource.Resource[T]) bool {
		return resource.Send(ctx.Done(), out, r)
	}

	first := true
	for {
		changed, cancel := n.Subscribe(topics...)

		data, err := query(ctx)
		if ctx.Err() != nil {
			cancel()
			return
		}
		ok := true
		switch {
		case errors.Is(err, ErrNoValue):
		case err != nil:
			ok = emit(resource.NewError[T](mapErr(err)))
		default:
			ok = emit(resource.NewSuccess(data))
		}
		if !ok {
			cancel()
			return
		}

		if first {
			first = false
			if then != nil {
				then(ctx, emit)
			}
		}

		select {
		case <-changed:
			cancel()
		case <-ctx.Done():
			cancel()
			return
		}
	}
}
