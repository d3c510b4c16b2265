package receipt

import (
	"encoding/json"
	"fmt"
)

// Repository loads and stores a single persisted value
type Repository[T any] interface {
	// Load returns the stored value and whether one was present
	Load() (T, bool, error)
	// Save replaces the stored value
	Save(value T) error
	// Clear removes the stored value
	Clear() error
}

// jsonRepository keeps a value JSON encoded under one key of a DB
type jsonRepository[T any] struct {
	db  DB
	key string
}

// NewRepository returns a Repository storing its value under key
func NewRepository[T any](db DB, key string) Repository[T] {
	return &jsonRepository[T]{db: db, key: key}
}

func (r *jsonRepository[T]) Load() (T, bool, error) {
	var value T
	data, err := r.db.Get(r.key)
	if err != nil {
		return value, false, err
	}
	if data == nil {
		return value, false, nil
	}
	if err := json.Unmarshal(data, &value); err != nil {
		var zero T
		return zero, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.key, err)
	}
	return value, true, nil
}

func (r *jsonRepository[T]) Save(value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", r.key, err)
	}
	return r.db.Put(r.key, data)
}

func (r *jsonRepository[T]) Clear() error {
	return r.db.Delete(r.key)
}
