package cache

import (
	"sync"
	"time"
)

// Cache: явный кэш с TTL и ручной инвалидацией. При ttl <= 0 записи не протухают.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[K]entry[V]
	gen   uint64 // растёт при каждой инвалидации
}

type entry[V any] struct {
	val     V
	expires time.Time
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[K]entry[V]),
	}
}

// WithClock подменяет часы (для тестов).
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.now = now
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.Invalidate(key)
		var zero V
		return zero, false
	}
	return e.val, true
}

func (c *Cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	c.items[key] = entry[V]{val: val, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.gen++
	c.mu.Unlock()
}

func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	c.items = make(map[K]entry[V])
	c.gen++
	c.mu.Unlock()
}

func (c *Cache[K, V]) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// setIfGen пишет значение, только если с момента gen не было инвалидаций.
func (c *Cache[K, V]) setIfGen(key K, val V, gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.items[key] = entry[V]{val: val, expires: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
}

// GetOrLoad отдаёт значение из кэша или загружает его. Ошибки не кэшируются.
// Результат загрузки, пересёкшейся с инвалидацией, в кэш не попадает.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	gen := c.generation()
	v, err := load()
	if err != nil {
		return v, err
	}
	c.setIfGen(key, v, gen)
	return v, nil
}
