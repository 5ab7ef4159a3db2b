// Package kv is the keyed-table state every engine component reads and writes.
//
// A table is an ordered mapping from string keys to opaque values. Every row
// records the account charged for its storage. Mutations happen inside
// Store.Update and become visible only if the callback returns nil.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound = errors.New("kv: not found")
	ErrNoPayer  = errors.New("kv: storage payer required for new row")
)

// Tx is the view of state available to one unit of work.
type Tx interface {
	// Get returns ErrNotFound when the key is absent.
	Get(table, key string) ([]byte, error)
	// Put inserts or replaces a row. An empty payer keeps the existing row's payer
	// and is an error for a new row.
	Put(table, key string, value []byte, payer string) error
	// Delete removes a row and releases its storage. It returns ErrNotFound when absent.
	Delete(table, key string) error
	// Scan visits rows whose key starts with prefix in ascending key order.
	// Returning ErrStop from fn ends the scan without error.
	Scan(table, prefix string, fn func(key string, value []byte) error) error
}

// ErrStop ends a Scan early.
var ErrStop = errors.New("kv: stop scan")

// Store runs units of work against persistent state.
type Store interface {
	// Update runs fn atomically. Any error from fn discards every write it made.
	// A store may run fn again after a serialization conflict, so fn must not
	// keep side effects outside tx.
	Update(ctx context.Context, fn func(Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	// Usage reports the bytes of storage currently charged to payer.
	Usage(ctx context.Context, payer string) (int64, error)
}

// GetJSON decodes the row at table/key into a T.
func GetJSON[T any](tx Tx, table, key string) (T, error) {
	raw, err := tx.Get(table, key)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := Decode[T](raw)
	if err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", table, key, err)
	}
	return v, nil
}

// Decode unmarshals a raw row value, typically inside a Scan callback.
func Decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// PutJSON encodes v and stores it at table/key.
func PutJSON(tx Tx, table, key string, v any, payer string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, key, err)
	}
	return tx.Put(table, key, raw, payer)
}

// Exists reports whether table/key is present.
func Exists(tx Tx, table, key string) (bool, error) {
	_, err := tx.Get(table, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

const sequenceTable = "seq"

// NextID returns the next value of the named sequence, starting at 1.
func NextID(tx Tx, name, payer string) (uint64, error) {
	var cur uint64
	raw, err := tx.Get(sequenceTable, name)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return 0, err
	default:
		cur, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode sequence %s: %w", name, err)
		}
	}
	cur++
	if err := tx.Put(sequenceTable, name, []byte(strconv.FormatUint(cur, 10)), payer); err != nil {
		return 0, err
	}
	return cur, nil
}

// IDKey renders a numeric id so lexical key order matches numeric order.
func IDKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}
