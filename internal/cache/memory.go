package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	data    []byte
	expires time.Time
}

// Memory хранит значения в памяти процесса с той же семантикой, что и Redis.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemory создаёт пустой кеш в памяти.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Get читает значение по ключу в result. Возвращает false, если ключа нет или срок истёк.
func (c *Memory) Get(_ context.Context, key string, result any) (bool, error) {
	const op = "cache.Memory.Get"
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !item.expires.IsZero() && c.now().After(item.expires) {
		return false, nil
	}
	if err := json.Unmarshal(item.data, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение. Нулевой expiration означает хранение без срока.
func (c *Memory) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Memory.Set"
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	item := memoryItem{data: data}
	if expiration > 0 {
		item.expires = c.now().Add(expiration)
	}
	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// Invalidate удаляет значение по ключу.
func (c *Memory) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Close ничего не делает; нужен для совместимости с Redis.
func (c *Memory) Close() error { return nil }
