package table

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Footer is the small, fixed-size metadata a table advertises, cached
// separately from the full decoded record set so that a caller that only
// needs sizes and ranges (the compaction planner) can read them without
// going back to the table.
type Footer struct {
	Size           int64
	HashFormat     HashFormat
	MinUpdateIndex uint64
	MaxUpdateIndex uint64
	RefCount       int
	LogCount       int
}

func footerOf(r *Reader) Footer {
	return Footer{
		Size:           r.Size(),
		HashFormat:     r.HashFormat(),
		MinUpdateIndex: r.MinUpdateIndex(),
		MaxUpdateIndex: r.MaxUpdateIndex(),
		RefCount:       r.RefCount(),
		LogCount:       r.LogCount(),
	}
}

// FooterCache is a bounded, process-local cache of table footers keyed
// by filename. A table file name is never reused, so a cached footer
// never needs invalidation once the file is known to exist.
type FooterCache struct {
	cache *lru.Cache[string, Footer]
}

// NewFooterCache returns a cache holding up to size entries. size <= 0
// yields a cache of a single entry.
func NewFooterCache(size int) *FooterCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, Footer](size)
	return &FooterCache{cache: c}
}

// Get returns the cached footer for name, if any.
func (c *FooterCache) Get(name string) (Footer, bool) {
	return c.cache.Get(name)
}

// Put records the footer for name, evicting the least recently used
// entry if the cache is full.
func (c *FooterCache) Put(name string, f Footer) {
	c.cache.Add(name, f)
}

// OpenCached opens the reader at path and records its footer in cache
// under name. The cache is not consulted; the file is always read.
func OpenCached(path, name string, cache *FooterCache) (*Reader, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Put(name, footerOf(r))
	}
	return r, nil
}
