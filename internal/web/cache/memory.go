package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local cache. Expired entries are removed lazily on
// read and by a periodic sweep.
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]item
	counters map[string]int64
	config   Config
	now      func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache with the default configuration
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultConfig(), time.Minute)
}

// NewMemoryCacheWithConfig creates a memory cache that sweeps every interval
// (0 disables the sweeper)
func NewMemoryCacheWithConfig(config Config, sweepInterval time.Duration) *MemoryCache {
	m := &MemoryCache{
		items:    make(map[string]item),
		counters: make(map[string]int64),
		config:   config,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop(sweepInterval)
	}
	return m
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	it, ok := m.items[m.config.Prefix+key]
	m.mu.RUnlock()

	if !ok || m.now().After(it.expiresAt) {
		return nil, ErrMiss
	}
	return it.value, nil
}

// Set stores a copy of value
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	m.mu.Lock()
	m.items[m.config.Prefix+key] = item{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Incr increments a counter
func (m *MemoryCache) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.config.Prefix + key
	m.counters[k]++
	return m.counters[k], nil
}

// Counter returns the value of a counter
func (m *MemoryCache) Counter(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[m.config.Prefix+key], nil
}

// Len returns the number of stored values, expired or not
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close stops the sweeper
func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}

func (m *MemoryCache) sweepLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryCache) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, it := range m.items {
		if now.After(it.expiresAt) {
			delete(m.items, k)
		}
	}
}
