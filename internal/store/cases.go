// Package store persists the case ledger over an ordered key-value store.
package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/serialization/codec/jam"
)

var (
	ErrCaseNotFound    = errors.New("case not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrStoreClosed     = errors.New("case store is closed")
	ErrCorruptCounter  = errors.New("corrupt counter value")
)

// Snapshot is the entire durable contract state: every case in id order plus
// the next id to assign.
type Snapshot struct {
	NextID uint64 `jam:"encoding=compact"`
	Cases  []record.DisputeCase
}

// Cases is the CaseStore: id -> DisputeCase plus the next-id counter.
// Mutations go through Tx; Cases itself only reads.
type Cases struct {
	db     db.KVStore
	closed atomic.Bool
}

func NewCases(kv db.KVStore) *Cases {
	return &Cases{db: kv}
}

// Get returns the case with the given id.
func (c *Cases) Get(id uint64) (record.DisputeCase, error) {
	if c.closed.Load() {
		return record.DisputeCase{}, ErrStoreClosed
	}

	b, err := c.db.Get(makeIDKey(prefixCase, id))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return record.DisputeCase{}, ErrCaseNotFound
		}
		return record.DisputeCase{}, fmt.Errorf("get case: %w", err)
	}

	var dc record.DisputeCase
	if err := jam.Unmarshal(b, &dc); err != nil {
		return record.DisputeCase{}, fmt.Errorf("decode case %d: %w", id, err)
	}
	return dc, nil
}

// NextID returns the id the next created case will receive.
func (c *Cases) NextID() (uint64, error) {
	if c.closed.Load() {
		return 0, ErrStoreClosed
	}
	return c.readCounter(makeKey(prefixNextID, nil))
}

// Count is the number of cases. Ids are dense, so it equals NextID.
func (c *Cases) Count() (uint64, error) {
	return c.NextID()
}

// List returns all cases ordered by id.
func (c *Cases) List() ([]record.DisputeCase, error) {
	if c.closed.Load() {
		return nil, ErrStoreClosed
	}

	iter, err := c.db.NewIterator([]byte{prefixCase}, []byte{prefixCase + 1})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var cases []record.DisputeCase
	for iter.Next() {
		b, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read case value: %w", err)
		}
		var dc record.DisputeCase
		if err := jam.Unmarshal(b, &dc); err != nil {
			log.Store.Error().Err(err).Hex("key", iter.Key()).Msg("undecodable case record")
			return nil, fmt.Errorf("decode case: %w", err)
		}
		cases = append(cases, dc)
	}
	return cases, nil
}

// Snapshot reads the full committed state.
func (c *Cases) Snapshot() (Snapshot, error) {
	next, err := c.NextID()
	if err != nil {
		return Snapshot{}, err
	}
	cases, err := c.List()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{NextID: next, Cases: cases}, nil
}

// ReceiptSeq returns the sequence number of the last stored receipt, 0 if none.
func (c *Cases) ReceiptSeq() (uint64, error) {
	if c.closed.Load() {
		return 0, ErrStoreClosed
	}
	return c.readCounter(makeKey(prefixReceiptSeq, nil))
}

// Receipt returns the encoded receipt stored under seq.
func (c *Cases) Receipt(seq uint64) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrStoreClosed
	}
	b, err := c.db.Get(makeIDKey(prefixReceipt, seq))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return b, nil
}

// Receipts returns every encoded receipt in sequence order.
func (c *Cases) Receipts() ([][]byte, error) {
	if c.closed.Load() {
		return nil, ErrStoreClosed
	}
	iter, err := c.db.NewIterator([]byte{prefixReceipt}, []byte{prefixReceipt + 1})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var out [][]byte
	for iter.Next() {
		b, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read receipt value: %w", err)
		}
		out = append(out, append([]byte(nil), b...))
	}
	return out, nil
}

// Begin opens an overlay transaction over the committed state. Callers must
// serialise transactions themselves.
func (c *Cases) Begin() *Tx {
	return &Tx{
		cases: c,
		dirty: make(map[uint64]record.DisputeCase),
	}
}

// Close closes the store and the underlying KV store.
func (c *Cases) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}

func (c *Cases) readCounter(key []byte) (uint64, error) {
	b, err := c.db.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get counter: %w", err)
	}
	v, ok := decodeUint64(b)
	if !ok {
		return 0, ErrCorruptCounter
	}
	return v, nil
}
