package receipt

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const stateBucket = "state"

// Keys of the independent entries in the state bucket
const (
	historyKey  = "history"
	settingsKey = "settings"
	sessionKey  = "session"
)

// DB is a small key/value store for the service state
type DB interface {
	// Get returns the value for key, or nil when it is not set
	Get(key string) ([]byte, error)

	// Put stores the value for key
	Put(key string, data []byte) error

	// Delete removes key, deleting a missing key is not an error
	Delete(key string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Get returns a copy of the stored value, bolt only guarantees the slice
// for the lifetime of the transaction
func (b *BoltDB) Get(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(stateBucket)).Get([]byte(key))
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put stores the value for key
func (b *BoltDB) Put(key string, data []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (b *BoltDB) Delete(key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
