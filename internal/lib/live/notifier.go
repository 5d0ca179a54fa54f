// Package live реализует «живые» запросы к локальному хранилищу.
//
// Хранилище после каждой зафиксированной записи увеличивает версию затронутых тем
// через Notifier. Watch подписывается на темы, выполняет запрос и повторяет его
// при каждом изменении, отправляя подписчику свежий результат, пока жив его контекст.
package live

import "sync"

// Topic — группа данных хранилища, об изменении которой уведомляются подписчики.
type Topic string

const (
	Places   Topic = "places"
	Reviews  Topic = "reviews"
	Hashes   Topic = "hashes"
	Currency Topic = "currency"
	Personal Topic = "personal"
)

type waiter struct {
	ch   chan struct{}
	once sync.Once
}

func (w *waiter) fire() {
	w.once.Do(func() { close(w.ch) })
}

// Notifier хранит версии тем и будит ожидающих подписчиков при их изменении.
type Notifier struct {
	mu       sync.Mutex
	versions map[Topic]uint64
	waiters  map[Topic][]*waiter
}

// NewNotifier создаёт новый Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		versions: make(map[Topic]uint64),
		waiters:  make(map[Topic][]*waiter),
	}
}

// Subscribe возвращает канал, который закроется при следующем изменении любой из тем,
// и функцию отмены подписки.
func (n *Notifier) Subscribe(topics ...Topic) (<-chan struct{}, func()) {
	w := &waiter{ch: make(chan struct{})}

	n.mu.Lock()
	for _, t := range topics {
		n.waiters[t] = append(n.waiters[t], w)
	}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, t := range topics {
			list := n.waiters[t]
			for i, cur := range list {
				if cur == w {
					n.waiters[t] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}
	return w.ch, cancel
}

// Notify увеличивает версии тем и будит всех, кто на них подписан.
func (n *Notifier) Notify(topics ...Topic) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, t := range topics {
		n.versions[t]++
		for _, w := range n.waiters[t] {
			w.fire()
		}
		delete(n.waiters, t)
	}
}

// Version возвращает текущую версию темы. Версия растёт на единицу с каждой
// зафиксированной записью, затронувшей тему.
func (n *Notifier) Version(t Topic) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.versions[t]
}
