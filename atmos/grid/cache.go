package grid

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader resolves a source identifier into a dataset. Implementations must
// be safe for concurrent use and idempotent: the same source yields the
// same dataset.
type Loader interface {
	LoadDataset(source string) (*Dataset, error)
}

// LoaderFunc adapts a plain function to the [Loader] interface.
type LoaderFunc func(source string) (*Dataset, error)

// LoadDataset calls f.
func (f LoaderFunc) LoadDataset(source string) (*Dataset, error) { return f(source) }

// Cache memoizes the most recently loaded dataset keyed by its source
// identifier. Repeated loads of the same source reuse the dataset without
// touching the loader; a changed source forces a reload. Concurrent loads
// of the same source collapse into one loader call, and a reload never
// disturbs in-flight readers of the previous dataset.
type Cache struct {
	loader Loader
	group  singleflight.Group
	cur    atomic.Pointer[cacheEntry]
}

type cacheEntry struct {
	source string
	ds     *Dataset
}

// NewCache builds a cache around the given loader.
func NewCache(l Loader) *Cache {
	return &Cache{loader: l}
}

// Load returns the dataset for the source, loading it on first use or when
// the source differs from the cached one. Load errors are not cached.
func (c *Cache) Load(source string) (*Dataset, error) {
	if e := c.cur.Load(); e != nil && e.source == source {
		return e.ds, nil
	}

	v, err, _ := c.group.Do(source, func() (any, error) {
		if e := c.cur.Load(); e != nil && e.source == source {
			return e.ds, nil
		}

		ds, err := c.loader.LoadDataset(source)
		if err != nil {
			return nil, fmt.Errorf("grid: loading %q: %w", source, err)
		}

		if ds.Source == "" {
			ds.Source = source
		}

		c.cur.Store(&cacheEntry{source: source, ds: ds})

		return ds, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Dataset), nil
}

// Invalidate drops the cached dataset so the next load hits the loader.
func (c *Cache) Invalidate() {
	c.cur.Store(nil)
}
