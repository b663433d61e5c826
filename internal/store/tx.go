package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/serialization/codec/jam"
)

var ErrTxDone = errors.New("transaction already committed or discarded")

// Tx buffers case mutations and applies them in one KV batch. Reads see the
// buffered writes. Nothing reaches the KV store before Commit.
type Tx struct {
	cases *Cases

	nextID       uint64
	nextIDLoaded bool
	dirty        map[uint64]record.DisputeCase

	receiptSeq    uint64
	receiptLoaded bool
	receipts      map[uint64][]byte

	done bool
}

func (tx *Tx) Get(id uint64) (record.DisputeCase, error) {
	if tx.done {
		return record.DisputeCase{}, ErrTxDone
	}
	if dc, ok := tx.dirty[id]; ok {
		return dc, nil
	}
	return tx.cases.Get(id)
}

func (tx *Tx) NextID() (uint64, error) {
	if tx.done {
		return 0, ErrTxDone
	}
	if !tx.nextIDLoaded {
		next, err := tx.cases.NextID()
		if err != nil {
			return 0, err
		}
		tx.nextID = next
		tx.nextIDLoaded = true
	}
	return tx.nextID, nil
}

// Create assigns the next id to a new case awaiting evidence.
func (tx *Tx) Create(plaintiff, defendant string) (record.DisputeCase, error) {
	id, err := tx.NextID()
	if err != nil {
		return record.DisputeCase{}, err
	}
	dc := record.New(id, plaintiff, defendant)
	tx.dirty[id] = dc
	tx.nextID = id + 1
	return dc, nil
}

// Put replaces an existing case.
func (tx *Tx) Put(dc record.DisputeCase) error {
	next, err := tx.NextID()
	if err != nil {
		return err
	}
	if dc.ID >= next {
		return fmt.Errorf("put case %d: %w", dc.ID, ErrCaseNotFound)
	}
	tx.dirty[dc.ID] = dc
	return nil
}

// AppendReceipt stages an encoded receipt under the next sequence number.
func (tx *Tx) AppendReceipt(encoded []byte) (uint64, error) {
	if tx.done {
		return 0, ErrTxDone
	}
	if !tx.receiptLoaded {
		seq, err := tx.cases.ReceiptSeq()
		if err != nil {
			return 0, err
		}
		tx.receiptSeq = seq
		tx.receiptLoaded = true
		tx.receipts = make(map[uint64][]byte)
	}
	tx.receiptSeq++
	tx.receipts[tx.receiptSeq] = encoded
	return tx.receiptSeq, nil
}

// Snapshot is the post-state this transaction would commit.
func (tx *Tx) Snapshot() (Snapshot, error) {
	if tx.done {
		return Snapshot{}, ErrTxDone
	}
	next, err := tx.NextID()
	if err != nil {
		return Snapshot{}, err
	}
	committed, err := tx.cases.List()
	if err != nil {
		return Snapshot{}, err
	}

	byID := make(map[uint64]record.DisputeCase, len(committed)+len(tx.dirty))
	for _, dc := range committed {
		byID[dc.ID] = dc
	}
	for id, dc := range tx.dirty {
		byID[id] = dc
	}
	cases := make([]record.DisputeCase, 0, len(byID))
	for _, dc := range byID {
		cases = append(cases, dc)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })

	return Snapshot{NextID: next, Cases: cases}, nil
}

// Commit writes every staged mutation in one atomic batch.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	if tx.cases.closed.Load() {
		return ErrStoreClosed
	}

	batch := tx.cases.db.NewBatch()
	defer batch.Close()

	ids := make([]uint64, 0, len(tx.dirty))
	for id := range tx.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b, err := jam.Marshal(tx.dirty[id])
		if err != nil {
			return fmt.Errorf("encode case %d: %w", id, err)
		}
		if err := batch.Put(makeIDKey(prefixCase, id), b); err != nil {
			return fmt.Errorf("store case: %w", err)
		}
	}
	if tx.nextIDLoaded {
		if err := batch.Put(makeKey(prefixNextID, nil), encodeUint64(tx.nextID)); err != nil {
			return fmt.Errorf("store counter: %w", err)
		}
	}
	for seq, b := range tx.receipts {
		if err := batch.Put(makeIDKey(prefixReceipt, seq), b); err != nil {
			return fmt.Errorf("store receipt: %w", err)
		}
	}
	if tx.receiptLoaded {
		if err := batch.Put(makeKey(prefixReceiptSeq, nil), encodeUint64(tx.receiptSeq)); err != nil {
			return fmt.Errorf("store receipt seq: %w", err)
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	tx.done = true
	return nil
}

// Discard drops every staged mutation. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.done = true
	tx.dirty = nil
	tx.receipts = nil
}
