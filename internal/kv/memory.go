package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

type row struct {
	value []byte
	payer string
}

// Memory is an in-process Store. Update holds an exclusive lock for the whole
// unit of work, which gives every call a total order.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]row
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]row)}
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{base: m.tables, writes: make(map[string]map[string]*row)}
	if err := fn(tx); err != nil {
		return err
	}
	for table, rows := range tx.writes {
		dst, ok := m.tables[table]
		if !ok {
			dst = make(map[string]row)
			m.tables[table] = dst
		}
		for key, r := range rows {
			if r == nil {
				delete(dst, key)
				continue
			}
			dst[key] = *r
		}
	}
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{base: m.tables, readOnly: true})
}

func (m *Memory) Usage(ctx context.Context, payer string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, rows := range m.tables {
		for key, r := range rows {
			if r.payer == payer {
				total += int64(len(key) + len(r.value))
			}
		}
	}
	return total, nil
}

var errReadOnly = errors.New("kv: write in read-only view")

// memTx overlays pending writes on the committed tables. A nil row marks a delete.
type memTx struct {
	base     map[string]map[string]row
	writes   map[string]map[string]*row
	readOnly bool
}

func (t *memTx) lookup(table, key string) (row, bool) {
	if w, ok := t.writes[table]; ok {
		if r, ok := w[key]; ok {
			if r == nil {
				return row{}, false
			}
			return *r, true
		}
	}
	r, ok := t.base[table][key]
	return r, ok
}

func (t *memTx) Get(table, key string) ([]byte, error) {
	r, ok := t.lookup(table, key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(r.value))
	copy(out, r.value)
	return out, nil
}

func (t *memTx) Put(table, key string, value []byte, payer string) error {
	if t.readOnly {
		return errReadOnly
	}
	if payer == "" {
		existing, ok := t.lookup(table, key)
		if !ok {
			return ErrNoPayer
		}
		payer = existing.payer
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	t.set(table, key, &row{value: stored, payer: payer})
	return nil
}

func (t *memTx) Delete(table, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.lookup(table, key); !ok {
		return ErrNotFound
	}
	t.set(table, key, nil)
	return nil
}

func (t *memTx) set(table, key string, r *row) {
	w, ok := t.writes[table]
	if !ok {
		w = make(map[string]*row)
		t.writes[table] = w
	}
	w[key] = r
}

func (t *memTx) Scan(table, prefix string, fn func(key string, value []byte) error) error {
	seen := make(map[string]struct{})
	var keys []string
	for key := range t.base[table] {
		if strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	for key := range t.writes[table] {
		if _, ok := seen[key]; !ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		r, ok := t.lookup(table, key)
		if !ok {
			continue
		}
		if err := fn(key, r.value); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
