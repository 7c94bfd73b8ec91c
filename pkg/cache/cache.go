// Package cache keeps recently computed pipeline plans in an LRU cache
// with disk persistence, keyed by candidate content and run options.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-dswp/pkg/pipeline"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// Key identifies one (candidate content, options) pair.
type Key string

// KeyFor hashes the candidate bytes together with the options that shaped
// the plan. opts must be hashable by hashstructure.
func KeyFor(content []byte, opts interface{}) (Key, error) {
	optHash, err := hashstructure.Hash(opts, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash options: %w", err)
	}
	h := sha256.New()
	h.Write(content)
	h.Write([]byte(strconv.FormatUint(optHash, 16)))
	return Key(hex.EncodeToString(h.Sum(nil))), nil
}

// Entry is a cached plan with metadata.
type Entry struct {
	Key        Key            `msgpack:"key"`
	Plan       *pipeline.Plan `msgpack:"plan"`
	CreatedAt  time.Time      `msgpack:"created_at"`
	AccessedAt time.Time      `msgpack:"accessed_at"`
}

// Options configures the plan cache.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted.
	OnEvict func(key Key, plan *pipeline.Plan)
}

// PlanCache is safe for concurrent use.
type PlanCache struct {
	mu      sync.Mutex
	items   map[Key]*list.Element
	lru     *list.List // most recent at front
	maxSize int
	onEvict func(Key, *pipeline.Plan)

	hits, misses int
}

// New creates a new plan cache with the given options.
func New(opts Options) *PlanCache {
	return &PlanCache{
		items:   make(map[Key]*list.Element),
		lru:     list.New(),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
	}
}

// Get returns the plan stored under key.
func (c *PlanCache) Get(key Key) (*pipeline.Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	entry := el.Value.(*Entry)
	entry.AccessedAt = time.Now()
	c.lru.MoveToFront(el)
	return entry.Plan, true
}

// Set stores plan under key, evicting the least recently used entries
// beyond MaxSize.
func (c *PlanCache) Set(key Key, plan *pipeline.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, exists := c.items[key]; exists {
		entry := el.Value.(*Entry)
		entry.Plan = plan
		entry.AccessedAt = now
		c.lru.MoveToFront(el)
		return
	}

	c.items[key] = c.lru.PushFront(&Entry{Key: key, Plan: plan, CreatedAt: now, AccessedAt: now})
	c.evictIfNeeded()
}

// Delete removes key from the cache.
func (c *PlanCache) Delete(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		return ErrKeyNotFound
	}
	c.remove(el)
	return nil
}

// Len returns the number of entries in the cache.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the hit and miss counts since creation.
func (c *PlanCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *PlanCache) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		c.remove(c.lru.Back())
	}
}

func (c *PlanCache) remove(el *list.Element) {
	entry := c.lru.Remove(el).(*Entry)
	delete(c.items, entry.Key)
	if c.onEvict != nil {
		c.onEvict(entry.Key, entry.Plan)
	}
}

// Save persists the cache to a writer using msgpack, most recent first.
func (c *PlanCache) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		entries = append(entries, *el.Value.(*Entry))
	}
	return msgpack.NewEncoder(w).Encode(entries)
}

// Load replaces the cache content with entries read from r.
func (c *PlanCache) Load(r io.Reader) error {
	var entries []Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element, len(entries))
	c.lru.Init()
	for i := range entries {
		entry := entries[i]
		c.items[entry.Key] = c.lru.PushBack(&entry)
	}
	c.evictIfNeeded()
	return nil
}

// SaveFile persists the cache to path, creating parent directories.
func (c *PlanCache) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFile loads the cache from path. A missing file leaves the cache empty.
func (c *PlanCache) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
