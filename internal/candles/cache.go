package candles

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"call-backtest-lab/internal/domain"
)

type cacheKey struct {
	key        domain.CandleKey
	start, end int64
}

type cacheEntry struct {
	k       cacheKey
	candles []domain.Candle
}

// CachedSource is an LRU cache in front of a Source. Concurrent misses for
// the same window share one fetch. Cached slices are shared and must be
// treated as read-only.
type CachedSource struct {
	next     Source
	capacity int
	group    singleflight.Group

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[cacheKey]*list.Element

	hits, misses int
}

// NewCachedSource wraps next with an LRU of capacity windows.
func NewCachedSource(next Source, capacity int) *CachedSource {
	return &CachedSource{
		next:     next,
		capacity: max(capacity, 1),
		order:    list.New(),
		entries:  make(map[cacheKey]*list.Element),
	}
}

// Series implements Source.
func (c *CachedSource) Series(ctx context.Context, key domain.CandleKey, start, end int64) ([]domain.Candle, error) {
	k := cacheKey{key: key, start: start, end: end}

	if candles, ok := c.get(k); ok {
		return candles, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%s|%s|%d|%d|%d", key.Chain, key.Token, key.IntervalSeconds, start, end), func() (any, error) {
		candles, err := c.next.Series(ctx, key, start, end)
		if err != nil {
			return nil, err
		}
		c.put(k, candles)
		return candles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Candle), nil
}

// Stats returns cache hits and misses so far.
func (c *CachedSource) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachedSource) get(k cacheKey) ([]domain.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).candles, true
}

func (c *CachedSource) put(k cacheKey, candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[k]; ok {
		el.Value.(*cacheEntry).candles = candles
		c.order.MoveToFront(el)
		return
	}

	c.entries[k] = c.order.PushFront(&cacheEntry{k: k, candles: candles})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).k)
	}
}

var _ Source = (*CachedSource)(nil)
