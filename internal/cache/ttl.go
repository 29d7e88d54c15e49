// Package cache содержит потокобезопасный in-memory кэш с TTL и подменяемыми часами.
package cache

import (
	"sync"
	"time"
)

// Clock возвращает текущее время. В тестах подменяется.
type Clock func() time.Time

// SystemClock - реальные часы в UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL - кэш с ограниченным временем жизни записей.
// Просроченные записи удаляются лениво при Get.
type TTL[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	ttl   time.Duration
	now   Clock
}

// NewTTL создает кэш. Нулевой или отрицательный ttl заменяется на 30 секунд,
// nil-часы - на SystemClock.
func NewTTL[V any](ttl time.Duration, clock Clock) *TTL[V] {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if clock == nil {
		clock = SystemClock
	}
	return &TTL[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   clock,
	}
}

// Get возвращает значение, если оно есть и не просрочено.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Set сохраняет значение на TTL от текущего момента.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate удаляет запись.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// TTL возвращает время жизни записей.
func (c *TTL[V]) TTL() time.Duration {
	return c.ttl
}
