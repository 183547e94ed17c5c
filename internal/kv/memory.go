package kv

import (
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // Zero value means no expiry
	createdAt time.Time
	updatedAt time.Time
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryBucket is an in-memory bucket (not persisted).
type MemoryBucket struct {
	name    string
	entries map[string]*memoryEntry
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]*memoryEntry),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// IsPersistent returns false (memory buckets are not persistent).
func (b *MemoryBucket) IsPersistent() bool {
	return false
}

// Store saves a value with the given key.
func (b *MemoryBucket) Store(key string, value any, opts *StoreOptions) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	entry := &memoryEntry{
		data:      data,
		expiresAt: expiry(opts, now),
		createdAt: now,
		updatedAt: now,
	}

	// Preserve created_at if updating existing entry
	if existing, ok := b.entries[key]; ok && !existing.isExpired(now) {
		entry.createdAt = existing.createdAt
	}

	b.entries[key] = entry
	return nil
}

// lookup returns the live entry data for key, deleting it lazily if expired.
func (b *MemoryBucket) lookup(key string) ([]byte, bool) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if entry.isExpired(time.Now()) {
		b.mu.Lock()
		if current, ok := b.entries[key]; ok && current == entry {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

// Load decodes the value for key into out.
func (b *MemoryBucket) Load(key string, out any) (bool, error) {
	data, ok := b.lookup(key)
	if !ok {
		return false, nil
	}
	return true, decode(data, out)
}

// Get retrieves a value by key.
func (b *MemoryBucket) Get(key string) (any, error) {
	var value any
	if _, err := b.Load(key, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Exists returns true if the key exists and hasn't expired.
func (b *MemoryBucket) Exists(key string) (bool, error) {
	_, ok := b.lookup(key)
	return ok, nil
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

// Keys returns all non-expired keys in the bucket, sorted.
func (b *MemoryBucket) Keys() ([]string, error) {
	b.CleanupExpired()

	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all keys from the bucket.
func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*memoryEntry)
	return nil
}

// CleanupExpired removes all expired entries from the bucket.
// Returns the number of entries removed.
func (b *MemoryBucket) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	count := 0
	for key, entry := range b.entries {
		if entry.isExpired(now) {
			delete(b.entries, key)
			count++
		}
	}
	return count
}
