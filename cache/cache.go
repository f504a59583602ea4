// Package cache provides a persistent perception result cache backed by badger.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"go.aimuz.me/basar/internal/types"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 10 * time.Minute

// Entry is one cached perception result.
type Entry struct {
	Result    types.Result `json:"result"`
	Provider  string       `json:"provider"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Cache is a key/value store of perception results.
type Cache struct {
	db *badger.DB
}

// New opens (or creates) a cache at path.
func New(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	return open(badger.DefaultOptions(path))
}

// NewInMemory creates a cache that lives only as long as the process.
func NewInMemory() (*Cache, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Cache, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the entry stored under key.
// Expired and undecodable entries are reported as missing.
func (c *Cache) Get(key string) (*Entry, bool) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, false
	}
	return &entry, true
}

// Set stores entry under key for ttl. A zero ttl never expires.
func (c *Cache) Set(key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
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
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close flushes and closes the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// GenerateKey joins parts into a fixed-length key.
func GenerateKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "perception:" + hex.EncodeToString(h[:])
}

// HashImage returns a hex digest of image data for use in keys.
func HashImage(image []byte) string {
	h := sha256.Sum256(image)
	return hex.EncodeToString(h[:])
}
