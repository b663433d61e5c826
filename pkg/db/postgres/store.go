// Package postgres implements db.KVStore on a single Postgres table, so a node
// can keep its case ledger in an existing database instead of a local pebble
// directory.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   BYTEA PRIMARY KEY,
	value BYTEA NOT NULL
)`

const upsert = `INSERT INTO kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

var _ db.KVStore = (*KVStore)(nil)

// KVStore is a db.KVStore backed by a pgx connection pool.
type KVStore struct {
	pool   *pgxpool.Pool
	ctx    context.Context
	mu     sync.RWMutex
	closed bool
}

// Open connects to the database and makes sure the kv table exists. The
// context bounds every later statement issued by the store.
func Open(ctx context.Context, connString string) (*KVStore, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &KVStore{pool: pool, ctx: ctx}, nil
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	var value []byte
	err := s.pool.QueryRow(s.ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return value, nil
}

func (s *KVStore) Put(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}

	if _, err := s.pool.Exec(s.ctx, upsert, key, value); err != nil {
		return fmt.Errorf("postgres: put: %w", err)
	}
	return nil
}

func (s *KVStore) Delete(key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}

	if _, err := s.pool.Exec(s.ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

// NewIterator loads the [start, end) range eagerly; bytea ordering in Postgres
// is bytewise, matching the pebble backend.
func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	var (
		conds []string
		args  []any
	)
	if start != nil {
		args = append(args, start)
		conds = append(conds, fmt.Sprintf("key >= $%d", len(args)))
	}
	if end != nil {
		args = append(args, end)
		conds = append(conds, fmt.Sprintf("key < $%d", len(args)))
	}
	query := `SELECT key, value FROM kv`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY key`

	rows, err := s.pool.Query(s.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: iterate: %w", err)
	}
	defer rows.Close()

	it := &Iterator{pos: -1}
	for rows.Next() {
		var kv pair
		if err := rows.Scan(&kv.key, &kv.value); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		it.pairs = append(it.pairs, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate: %w", err)
	}
	return it, nil
}

func (s *KVStore) NewBatch() db.Batch {
	return &Batch{store: s}
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}

type op struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch stages writes in memory and applies them in one transaction on Commit.
type Batch struct {
	store *KVStore
	ops   []op
	done  bool
}

func (b *Batch) Put(key, value []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: key, value: value})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: key, delete: true})
	return nil
}

func (b *Batch) Commit() error {
	if b.done {
		return db.ErrBatchDone
	}
	s := b.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}

	err := pgx.BeginFunc(s.ctx, s.pool, func(tx pgx.Tx) error {
		for _, o := range b.ops {
			var err error
			if o.delete {
				_, err = tx.Exec(s.ctx, `DELETE FROM kv WHERE key = $1`, o.key)
			} else {
				_, err = tx.Exec(s.ctx, upsert, o.key, o.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: commit batch: %w", err)
	}
	b.done = true
	b.ops = nil
	return nil
}

func (b *Batch) Close() error {
	b.done = true
	b.ops = nil
	return nil
}

type pair struct {
	key   []byte
	value []byte
}

// Iterator walks a materialised result set.
type Iterator struct {
	pairs []pair
	pos   int
}

func (it *Iterator) Next() bool {
	if it.pos < len(it.pairs) {
		it.pos++
	}
	return it.pos < len(it.pairs)
}

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.pairs[it.pos].key
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, fmt.Errorf("postgres: iterator is not positioned")
	}
	return it.pairs[it.pos].value, nil
}

func (it *Iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.pairs)
}

func (it *Iterator) Close() error {
	it.pairs = nil
	return nil
}
