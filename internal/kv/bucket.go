// Package kv provides key-value buckets with SQLite persistence and in-memory options.
// Values are stored as JSON in both kinds of bucket.
package kv

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoreOptions contains optional parameters for Store operations.
type StoreOptions struct {
	TTL time.Duration // Time-to-live; zero means no expiry
}

// Bucket is the interface for key-value storage operations.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Store saves a JSON-encodable value with the given key.
	Store(key string, value any, opts *StoreOptions) error

	// Load decodes the value for key into out.
	// Returns false if the key doesn't exist or has expired.
	Load(key string, out any) (bool, error)

	// Get retrieves a value by key as generic JSON data.
	// Returns nil if the key doesn't exist or has expired.
	Get(key string) (any, error)

	// Exists returns true if the key exists and hasn't expired.
	Exists(key string) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all non-expired keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}

func encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

func expiry(opts *StoreOptions, now time.Time) time.Time {
	if opts == nil || opts.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(opts.TTL)
}
