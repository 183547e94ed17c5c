package kv

import "time"

// Typed is a single key of a bucket holding values of type T.
type Typed[T any] struct {
	bucket Bucket
	key    string
}

// NewTyped binds key in bucket to type T.
func NewTyped[T any](bucket Bucket, key string) *Typed[T] {
	return &Typed[T]{bucket: bucket, key: key}
}

// Key returns the bound key.
func (t *Typed[T]) Key() string {
	return t.key
}

// Get returns the stored value. ok is false if nothing is stored.
func (t *Typed[T]) Get() (value T, ok bool, err error) {
	ok, err = t.bucket.Load(t.key, &value)
	return value, ok, err
}

// Set stores value without expiry.
func (t *Typed[T]) Set(value T) error {
	return t.bucket.Store(t.key, value, nil)
}

// SetTTL stores value expiring after ttl.
func (t *Typed[T]) SetTTL(value T, ttl time.Duration) error {
	return t.bucket.Store(t.key, value, &StoreOptions{TTL: ttl})
}

// Update applies modify to the current value (zero value if unset) and stores the result.
func (t *Typed[T]) Update(modify func(current T) T) error {
	current, _, err := t.Get()
	if err != nil {
		return err
	}
	return t.Set(modify(current))
}

// Delete removes the value.
func (t *Typed[T]) Delete() error {
	_, err := t.bucket.Delete(t.key)
	return err
}
