package clientcache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds one lazily built client per key. Concurrent first requests for
// a key share a single factory call; failed builds are not cached.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	clients map[K]V
	group   singleflight.Group
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{clients: make(map[K]V)}
}

// GetOrCreate returns the client for key, building it with factory on first use.
func (c *Cache[K, V]) GetOrCreate(key K, factory func() (V, error)) (V, error) {
	if client, ok := c.get(key); ok {
		return client, nil
	}

	v, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		if client, ok := c.get(key); ok {
			return client, nil
		}

		client, err := factory()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.clients[key] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return v.(V), nil
}

func (c *Cache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[key]
	return client, ok
}

// Delete drops the client for key so the next GetOrCreate rebuilds it.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, key)
}

// Len reports how many clients are built.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}
