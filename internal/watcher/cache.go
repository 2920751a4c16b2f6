package watcher

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies a weight by content, shape and the options that change
// its metrics.
type cacheKey struct {
	sum     uint64
	rows    int
	cols    int
	flags   uint8
	minTail int
}

func newCacheKey(w *Matrix, opts Options) cacheKey {
	var sum uint64
	if len(w.Data) > 0 {
		b := unsafe.Slice((*byte)(unsafe.Pointer(&w.Data[0])), len(w.Data)*8)
		sum = xxhash.Sum64(b)
	}
	return cacheKey{
		sum:     sum,
		rows:    w.Shape[0],
		cols:    w.Shape[1],
		flags:   opts.flags(),
		minTail: opts.minTail(),
	}
}

type metricsCache struct {
	lru *lru.Cache[cacheKey, layerMetrics]
}

func newMetricsCache(size int) (*metricsCache, error) {
	c, err := lru.New[cacheKey, layerMetrics](size)
	if err != nil {
		return nil, err
	}
	return &metricsCache{lru: c}, nil
}

func (c *metricsCache) get(k cacheKey) (layerMetrics, bool) {
	return c.lru.Get(k)
}

func (c *metricsCache) add(k cacheKey, m layerMetrics) {
	c.lru.Add(k, m)
}

func (c *metricsCache) len() int {
	return c.lru.Len()
}
