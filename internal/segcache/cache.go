// Package segcache bounds the number of concurrently open segment file
// descriptors and mmap iterators, evicting the least recently used one
// once a fixed capacity is reached.
package segcache

import (
	"container/list"
	"os"
	"sync"

	"github.com/backtrace-labs/stuffed-record-stream/internal/recstream"
)

// Cache holds open (*os.File, *recstream.Iterator) pairs keyed by segment
// path, evicting least-recently-used entries once Capacity is reached.
//
// Grounded on the teacher's internal/resource/segment_cache.go, adapted
// from caching *segment.Segment by "topic-partID-baseOffset" key to
// caching *recstream.Iterator by file path.
type Cache struct {
	mu       sync.Mutex
	capacity int
	lruList  *list.List
	items    map[string]*list.Element
}

type cacheItem struct {
	path string
	fd   *os.File
	it   *recstream.Iterator
}

// New returns a Cache holding at most capacity open segments. A
// non-positive capacity falls back to a default of 500, matching the
// teacher's NewSegmentCache.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 500
	}
	return &Cache{
		capacity: capacity,
		lruList:  list.New(),
		items:    make(map[string]*list.Element),
	}
}

// GetOrOpen returns the cached iterator for path, opening and mmapping
// the file if it isn't already cached. The returned iterator must not be
// closed by the caller; the Cache owns its lifecycle until eviction or
// Cache.Close.
func (c *Cache) GetOrOpen(path string) (*recstream.Iterator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[path]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheItem).it, nil
	}

	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	it, err := recstream.NewFileIterator(fd)
	if err != nil {
		fd.Close()
		return nil, err
	}

	if c.lruList.Len() >= c.capacity {
		c.evict()
	}

	item := &cacheItem{path: path, fd: fd, it: it}
	elem := c.lruList.PushFront(item)
	c.items[path] = elem

	return it, nil
}

// Evict drops path from the cache, if present, closing its iterator and
// file descriptor. Callers should evict a segment before removing or
// mutating its underlying file, since the mmap otherwise keeps stale
// pages reachable.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[path]
	if !ok {
		return
	}
	c.removeElem(elem)
}

func (c *Cache) evict() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.removeElem(elem)
}

func (c *Cache) removeElem(elem *list.Element) {
	c.lruList.Remove(elem)
	item := elem.Value.(*cacheItem)
	delete(c.items, item.path)
	_ = item.it.Close()
	_ = item.fd.Close()
}

// Len returns the number of segments currently held open.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Close releases every cached segment.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.lruList.Front(); e != nil; e = e.Next() {
		item := e.Value.(*cacheItem)
		_ = item.it.Close()
		_ = item.fd.Close()
	}
	c.lruList.Init()
	c.items = make(map[string]*list.Element)
	return nil
}
