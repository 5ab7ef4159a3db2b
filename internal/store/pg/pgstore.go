// Package pg persists engine state in PostgreSQL.
//
// Every table lives in the kv_rows relation keyed by (tbl, key). A unit of
// work maps onto one serializable transaction.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dacgov.org/internal/kv"
)

// Concurrent calls that touch the same rows abort with a serialization
// failure; Update retries them up to this many times.
const maxAttempts = 5

type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.update(ctx, fn)
		if err == nil || attempt == maxAttempts || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
}

// retryable reports serialization_failure and deadlock_detected.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func (s *Store) update(ctx context.Context, fn func(kv.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Usage(ctx context.Context, payer string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(octet_length(key) + octet_length(value)), 0)
		from kv_rows where payer=$1
	`, payer).Scan(&total)
	return total, err
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) Get(table, key string) ([]byte, error) {
	var v []byte
	err := t.tx.QueryRowContext(t.ctx, `select value from kv_rows where tbl=$1 and key=$2`, table, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (t *pgTx) Put(table, key string, value []byte, payer string) error {
	if payer == "" {
		res, err := t.tx.ExecContext(t.ctx, `update kv_rows set value=$3 where tbl=$1 and key=$2`, table, key, value)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return kv.ErrNoPayer
		}
		return nil
	}
	_, err := t.tx.ExecContext(t.ctx, `
		insert into kv_rows(tbl, key, value, payer)
		values ($1,$2,$3,$4)
		on conflict (tbl, key) do update
		set value = excluded.value, payer = excluded.payer
	`, table, key, value, payer)
	return err
}

func (t *pgTx) Delete(table, key string) error {
	res, err := t.tx.ExecContext(t.ctx, `delete from kv_rows where tbl=$1 and key=$2`, table, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kv.ErrNotFound
	}
	return nil
}

func (t *pgTx) Scan(table, prefix string, fn func(key string, value []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx, `
		select key, value from kv_rows
		where tbl=$1 and starts_with(key, $2)
		order by key asc
	`, table, prefix)
	if err != nil {
		return err
	}
	// Collect first so fn may issue further statements on the same transaction.
	type kvRow struct {
		key   string
		value []byte
	}
	var buf []kvRow
	for rows.Next() {
		var r kvRow
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			return err
		}
		buf = append(buf, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range buf {
		if err := fn(r.key, r.value); err != nil {
			if errors.Is(err, kv.ErrStop) {
				return nil
			}
			return fmt.Errorf("scan %s: %w", table, err)
		}
	}
	return nil
}
