// Package ledger wraps the case store in serialised, all-or-nothing write
// transactions and records a receipt with the post-state root for each one.
package ledger

import (
	"fmt"
	"sync"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/crypto"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/store"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/serialization/codec/jam"
)

// Receipt identifies one committed write and the state it produced.
type Receipt struct {
	Seq       uint64 `jam:"encoding=compact"`
	Method    string
	CaseID    uint64 `jam:"encoding=compact"`
	StateRoot crypto.Hash
}

// Ledger is safe for concurrent use; writes are applied one at a time.
type Ledger struct {
	mu    sync.Mutex
	cases *store.Cases
	root  crypto.Hash
}

// New opens a ledger over cases and computes the current state root.
func New(cases *store.Cases) (*Ledger, error) {
	snap, err := cases.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	root, err := StateRoot(snap)
	if err != nil {
		return nil, err
	}
	return &Ledger{cases: cases, root: root}, nil
}

// Execute runs fn inside a transaction. If fn returns an error nothing is
// written. Otherwise the mutations and a receipt are committed atomically.
// fn returns the id of the case it touched.
func (l *Ledger) Execute(method string, fn func(tx *store.Tx) (uint64, error)) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.cases.Begin()
	defer tx.Discard()

	caseID, err := fn(tx)
	if err != nil {
		return Receipt{}, err
	}

	snap, err := tx.Snapshot()
	if err != nil {
		return Receipt{}, fmt.Errorf("post-state snapshot: %w", err)
	}
	root, err := StateRoot(snap)
	if err != nil {
		return Receipt{}, err
	}

	seq, err := l.cases.ReceiptSeq()
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{Seq: seq + 1, Method: method, CaseID: caseID, StateRoot: root}
	encoded, err := jam.Marshal(receipt)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode receipt: %w", err)
	}
	if _, err := tx.AppendReceipt(encoded); err != nil {
		return Receipt{}, err
	}

	if err := tx.Commit(); err != nil {
		return Receipt{}, err
	}
	l.root = root

	log.Store.Debug().
		Uint64("seq", receipt.Seq).
		Str("method", method).
		Uint64("case_id", caseID).
		Str("state_root", root.String()).
		Msg("committed")
	return receipt, nil
}

// View runs fn against the committed state while holding the write lock, so
// it never observes a half-applied write.
func (l *Ledger) View(fn func(cases *store.Cases) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.cases)
}

// Root is the state root after the last committed write.
func (l *Ledger) Root() crypto.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root
}

func (l *Ledger) Snapshot() (store.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cases.Snapshot()
}

// Receipts returns every receipt in commit order.
func (l *Ledger) Receipts() ([]Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.cases.Receipts()
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(raw))
	for _, b := range raw {
		var r Receipt
		if err := jam.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decode receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cases.Close()
}

// StateRoot is blake2b-256 over the canonical encoding of the snapshot.
func StateRoot(s store.Snapshot) (crypto.Hash, error) {
	b, err := jam.Marshal(s)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return crypto.HashData(b), nil
}
