package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUpdateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.Put("balances", "alice/EDNA", []byte("10"), "alice")
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		v, err := tx.Get("balances", "alice/EDNA")
		require.NoError(t, err)
		assert.Equal(t, "10", string(v))
		return nil
	}))
}

func TestMemoryUpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	boom := errors.New("boom")

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.Put("t", "a", []byte("1"), "p")
	}))
	err := s.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.Put("t", "a", []byte("2"), ""))
		require.NoError(t, tx.Put("t", "b", []byte("3"), "p"))
		got, err := tx.Get("t", "a")
		require.NoError(t, err)
		assert.Equal(t, "2", string(got), "writes are visible inside the unit of work")
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		v, err := tx.Get("t", "a")
		require.NoError(t, err)
		assert.Equal(t, "1", string(v))
		_, err = tx.Get("t", "b")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestMemoryPayerRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Update(ctx, func(tx Tx) error { return tx.Put("t", "k", []byte("v"), "") })
	require.ErrorIs(t, err, ErrNoPayer)

	require.NoError(t, s.Update(ctx, func(tx Tx) error { return tx.Put("t", "k", []byte("v"), "bob") }))
	require.NoError(t, s.Update(ctx, func(tx Tx) error { return tx.Put("t", "k", []byte("vvvv"), "") }))

	usage, err := s.Usage(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(len("k")+len("vvvv")), usage)

	require.NoError(t, s.Update(ctx, func(tx Tx) error { return tx.Delete("t", "k") }))
	usage, err = s.Usage(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestMemoryDeleteMissing(t *testing.T) {
	s := NewMemory()
	err := s.Update(context.Background(), func(tx Tx) error { return tx.Delete("t", "nope") })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryScanOrderAndOverlay(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		for _, k := range []string{"a/3", "a/1", "b/1", "a/2"} {
			if err := tx.Put("t", k, []byte(k), "p"); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.Delete("t", "a/2"))
		require.NoError(t, tx.Put("t", "a/0", []byte("new"), "p"))
		var keys []string
		require.NoError(t, tx.Scan("t", "a/", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		}))
		assert.Equal(t, []string{"a/0", "a/1", "a/3"}, keys)

		keys = nil
		require.NoError(t, tx.Scan("t", "", func(key string, _ []byte) error {
			keys = append(keys, key)
			if len(keys) == 2 {
				return ErrStop
			}
			return nil
		}))
		assert.Equal(t, []string{"a/0", "a/1"}, keys)
		return nil
	}))
}

func TestViewRejectsWrites(t *testing.T) {
	s := NewMemory()
	err := s.View(context.Background(), func(tx Tx) error { return tx.Put("t", "k", nil, "p") })
	assert.Error(t, err)
}

func TestJSONHelpersAndSequence(t *testing.T) {
	type rec struct {
		Name string `json:"name"`
	}
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		require.NoError(t, PutJSON(tx, "t", "x", rec{Name: "x"}, "p"))
		got, err := GetJSON[rec](tx, "t", "x")
		require.NoError(t, err)
		assert.Equal(t, "x", got.Name)

		ok, err := Exists(tx, "t", "y")
		require.NoError(t, err)
		assert.False(t, ok)

		for want := uint64(1); want <= 3; want++ {
			id, err := NextID(tx, "proposals", "p")
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}
		return nil
	}))
	assert.Equal(t, "00000000000000000012", IDKey(12))
}
