package cratesio

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"
)

// Cache holds crate metadata for a limited time.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewCache creates a crate cache backed by a Badger database.
// Entries expire after ttl.
func NewCache(db *badger.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

func cacheKey(name string) []byte {
	return append([]byte("crate\x00"), name...)
}

// Get returns the cached metadata for a crate, if any.
func (c *Cache) Get(name string) (Crate, bool, error) {
	var b []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(name))
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return Crate{}, false, nil
	case err != nil:
		return Crate{}, false, fmt.Errorf("couldn't read cached crate: %w", err)
	}
	var cr Crate
	if err := json.Unmarshal(b, &cr); err != nil {
		return Crate{}, false, fmt.Errorf("couldn't decode cached crate: %w", err)
	}
	return cr, true, nil
}

// Put caches the metadata for a crate.
func (c *Cache) Put(name string, cr Crate) error {
	b, err := json.Marshal(&cr)
	if err != nil {
		// should never happen
		panic(err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(cacheKey(name), b).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("couldn't cache crate: %w", err)
	}
	return nil
}
