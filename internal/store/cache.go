// Package store implements the bounded LRU/TTL key-value cache that is the
// applied state machine of a raftkv node. It is deterministic with respect
// to the committed command sequence: two nodes that apply the same prefix
// of commands end up with the same set of keys and values, independent of
// wall-clock skew between them (TTL-driven removal is the one exception,
// called out in spec section 4.6).
package store

import (
	"sync"
	"sync/atomic"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// entry is the value stored per key in the backing radix tree.
type entry struct {
	value        string
	createdAt    time.Time
	lastAccessAt time.Time
	accessCount  int64
	hasTTL       bool
	expiresAt    time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

// Cache is the bounded LRU/TTL key-value store applied by a node's apply
// loop. Size reads the published immutable radix tree without locking.
// Get, Keys and the applied commands take the cache's own mutex (never
// alongside the consensus node's lock); Get also writes, since it bumps
// the entry's access bookkeeping or removes an expired entry, per spec
// section 5's shared-resource policy.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	tree    atomic.Value // holds *iradix.Tree
}

// New constructs an empty cache bounded to maxSize entries.
func New(maxSize int) *Cache {
	c := &Cache{maxSize: maxSize}
	c.tree.Store(iradix.New())
	return c
}

func (c *Cache) load() *iradix.Tree {
	return c.tree.Load().(*iradix.Tree)
}

// Size returns the current number of entries (including not-yet-expired
// ones; expired entries are lazily removed on access).
func (c *Cache) Size() int {
	return c.load().Len()
}

// Get performs a best-effort local read. If the key is present and not
// expired, it returns the value and bumps the entry's LRU/access
// bookkeeping. If the key is present but expired, it is removed and an
// absent result is returned. Get is never replicated (spec section 4.6).
func (c *Cache) Get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.load()
	raw, ok := t.Get([]byte(key))
	if !ok {
		return "", false
	}
	e := raw.(*entry)
	if e.expired(now) {
		txn := t.Txn()
		txn.Delete([]byte(key))
		c.tree.Store(txn.Commit())
		return "", false
	}

	bumped := *e
	bumped.lastAccessAt = now
	bumped.accessCount++
	txn := t.Txn()
	txn.Insert([]byte(key), &bumped)
	c.tree.Store(txn.Commit())

	return bumped.value, true
}

// Set applies a committed set(k, v, ttl?) command at applyTime. If the key
// is new and the cache is at capacity, the least-recently-accessed entry is
// evicted first; ties break on the lexicographically smallest key so that
// eviction is driven only by the command stream and matches byte-for-byte
// across replicas, as required by spec section 4.6.
func (c *Cache) Set(key, value string, ttl time.Duration, applyTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.load()
	_, exists := t.Get([]byte(key))
	if !exists && t.Len() >= c.maxSize && c.maxSize > 0 {
		t = c.evictLocked(t)
	}

	e := &entry{
		value:        value,
		createdAt:    applyTime,
		lastAccessAt: applyTime,
		accessCount:  0,
	}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = applyTime.Add(ttl)
	}

	txn := t.Txn()
	txn.Insert([]byte(key), e)
	c.tree.Store(txn.Commit())
}

// evictLocked removes the entry with the oldest lastAccessAt, breaking ties
// by lexicographically smallest key. Must be called with c.mu held.
func (c *Cache) evictLocked(t *iradix.Tree) *iradix.Tree {
	var evictKey []byte
	var oldest time.Time
	found := false

	it := t.Root().Iterator()
	for {
		k, raw, ok := it.Next()
		if !ok {
			break
		}
		e := raw.(*entry)
		if !found || e.lastAccessAt.Before(oldest) {
			found = true
			oldest = e.lastAccessAt
			evictKey = append([]byte(nil), k...)
		}
	}
	if !found {
		return t
	}
	txn := t.Txn()
	txn.Delete(evictKey)
	return txn.Commit()
}

// Delete applies a committed delete(k) command.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.load()
	txn := t.Txn()
	txn.Delete([]byte(key))
	c.tree.Store(txn.Commit())
}

// Clear applies a committed clear command, removing every key.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Store(iradix.New())
}

// Keys returns every non-expired key, in sorted order. It is a local read,
// not part of the replicated command set.
func (c *Cache) Keys(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.load()
	keys := make([]string, 0, t.Len())
	it := t.Root().Iterator()
	for {
		k, raw, ok := it.Next()
		if !ok {
			break
		}
		if !raw.(*entry).expired(now) {
			keys = append(keys, string(k))
		}
	}
	return keys
}
