package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db/pebble"
)

func newCases(t *testing.T) *Cases {
	t.Helper()
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	cases := NewCases(kv)
	t.Cleanup(func() {
		_ = cases.Close()
	})
	return cases
}

func createN(t *testing.T, cases *Cases, n int) {
	t.Helper()
	tx := cases.Begin()
	for i := 0; i < n; i++ {
		_, err := tx.Create("p", "d")
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
}

func Test_EmptyStore(t *testing.T) {
	cases := newCases(t)

	next, err := cases.NextID()
	require.NoError(t, err)
	assert.Zero(t, next)

	list, err := cases.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = cases.Get(0)
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func Test_CreateAssignsDenseIDs(t *testing.T) {
	cases := newCases(t)

	for round := 0; round < 3; round++ {
		tx := cases.Begin()
		a, err := tx.Create("alice", "bob")
		require.NoError(t, err)
		b, err := tx.Create("carol", "dave")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.Equal(t, uint64(round*2), a.ID)
		assert.Equal(t, uint64(round*2+1), b.ID)
	}

	count, err := cases.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), count)

	list, err := cases.List()
	require.NoError(t, err)
	require.Len(t, list, 6)
	for i, dc := range list {
		assert.Equal(t, uint64(i), dc.ID)
	}
}

func Test_ListOrdersNumerically(t *testing.T) {
	cases := newCases(t)
	createN(t, cases, 300)

	list, err := cases.List()
	require.NoError(t, err)
	require.Len(t, list, 300)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func Test_TxIsolation(t *testing.T) {
	cases := newCases(t)
	createN(t, cases, 1)

	tx := cases.Begin()
	dc, err := tx.Get(0)
	require.NoError(t, err)
	dc.SetEvidence(record.PartyPlaintiff, "staged")
	require.NoError(t, tx.Put(dc))

	staged, err := tx.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "staged", staged.PlaintiffEvidence)

	committed, err := cases.Get(0)
	require.NoError(t, err)
	assert.Empty(t, committed.PlaintiffEvidence)

	tx.Discard()
	_, err = tx.Get(0)
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)

	committed, err = cases.Get(0)
	require.NoError(t, err)
	assert.Empty(t, committed.PlaintiffEvidence)
}

func Test_TxPutUnknownCase(t *testing.T) {
	cases := newCases(t)
	tx := cases.Begin()
	defer tx.Discard()

	err := tx.Put(record.New(4, "p", "d"))
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func Test_TxSnapshotMergesStaged(t *testing.T) {
	cases := newCases(t)
	createN(t, cases, 2)

	tx := cases.Begin()
	defer tx.Discard()
	dc, err := tx.Get(1)
	require.NoError(t, err)
	dc.SetEvidence(record.PartyDefendant, "d")
	require.NoError(t, tx.Put(dc))
	_, err = tx.Create("x", "y")
	require.NoError(t, err)

	snap, err := tx.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.NextID)
	require.Len(t, snap.Cases, 3)
	assert.Equal(t, "d", snap.Cases[1].DefendantEvidence)
	assert.Equal(t, "x", snap.Cases[2].Plaintiff)

	committed, err := cases.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), committed.NextID)
}

func Test_Receipts(t *testing.T) {
	cases := newCases(t)

	tx := cases.Begin()
	seq, err := tx.AppendReceipt([]byte("one"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	require.NoError(t, tx.Commit())

	tx = cases.Begin()
	seq, err = tx.AppendReceipt([]byte("two"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	require.NoError(t, tx.Commit())

	last, err := cases.ReceiptSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	b, err := cases.Receipt(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), b)

	_, err = cases.Receipt(3)
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	all, err := cases.Receipts()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, all)
}

func Test_Close(t *testing.T) {
	cases := newCases(t)
	require.NoError(t, cases.Close())
	// Closing a closed store should have no effect/error
	require.NoError(t, cases.Close())

	_, err := cases.Get(0)
	assert.Equal(t, ErrStoreClosed, err)
	_, err = cases.List()
	assert.Equal(t, ErrStoreClosed, err)
}
