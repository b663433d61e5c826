package testutils

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/ledger"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/store"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db/pebble"
)

func RandomED25519PublicKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

// MemoryLedger is a ledger over an in-memory pebble store, closed on cleanup.
func MemoryLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	l, err := ledger.New(store.NewCases(kv))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

// Verdict is the JSON an oracle returns for a decision.
func Verdict(winner record.Party, reasoning string) string {
	b, _ := json.Marshal(map[string]string{
		"winner":    string(winner),
		"reasoning": reasoning,
	})
	return string(b)
}

// FixedInvoker always answers raw.
func FixedInvoker(raw string) oracle.Invoker {
	return oracle.InvokerFunc(func(context.Context, string) (string, error) {
		return raw, nil
	})
}
