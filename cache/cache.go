// Package cache provides a small TTL key/value cache backed by badger.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is used by callers that have no better expiry in mind.
const DefaultTTL = 10 * time.Minute

// Cache stores JSON-encoded values with an expiry.
type Cache struct {
	db *badger.DB
}

// New opens a cache. An empty path keeps everything in memory.
func New(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{db: db}, nil
}

// GenerateKey hashes parts into a fixed-length key.
func GenerateKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Get decodes the value stored under key into v. It reports false when the
// key is missing, expired or undecodable.
func (c *Cache) Get(key string, v any) bool {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Set stores v under key for ttl. A ttl <= 0 stores without expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}
