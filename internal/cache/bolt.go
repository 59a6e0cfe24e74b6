package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var responsesBucket = []byte("responses")

// boltEntry is the msgpack envelope stored per key.
type boltEntry struct {
	Payload   []byte `msgpack:"p"`
	CreatedAt int64  `msgpack:"t"`
}

// BoltBackend keeps entries in a local bbolt file, separate from the
// relational store.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the bolt file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	opts := *bbolt.DefaultOptions
	opts.Timeout = 10 * time.Second

	db, err := bbolt.Open(path, 0600, &opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open bolt: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(responsesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var (
		entry boltEntry
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(responsesBucket).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		// Unmarshal copies out of the mmap before the transaction ends.
		return msgpack.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache: bolt get: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// PutIfAbsent checks and writes within one update transaction.
func (b *BoltBackend) PutIfAbsent(ctx context.Context, key, value []byte) error {
	raw, err := msgpack.Marshal(&boltEntry{Payload: value, CreatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(responsesBucket)
		if bucket.Get(key) != nil {
			return nil
		}
		return bucket.Put(key, raw)
	})
	if err != nil {
		return fmt.Errorf("cache: bolt put: %w", err)
	}
	return nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
