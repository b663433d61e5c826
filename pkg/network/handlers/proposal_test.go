package handlers_test

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/crypto"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/testutils"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/validator"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/cert"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/handlers"
	streams "github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/handlers/testutils"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/protocol"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/transport"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/serialization/codec/jam"
)

var verdict = testutils.Verdict(record.PartyDefendant, "The invoice was never delivered.")

func request() consensus.Request {
	return consensus.Request{
		Attempt:  uuid.New(),
		CaseID:   7,
		Prompt:   "who wins?",
		Task:     "Analyze dispute evidence and determine the winner",
		Criteria: "Must return valid JSON",
		Context:  []consensus.Field{{Key: "plaintiff", Value: "alice"}},
	}
}

func fixedService(id uint16, raw string) consensus.Validator {
	return validator.NewService(id, testutils.FixedInvoker(raw), nil)
}

func TestProposalHandler_HandleStream(t *testing.T) {
	req := request()
	content, err := jam.Marshal(req)
	require.NoError(t, err)

	stream := streams.NewMockStream(nil)
	require.NoError(t, handlers.WriteMessageWithContext(context.Background(), stream.In, content))

	peer, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	h := handlers.NewProposalHandler(fixedService(2, verdict))
	require.NoError(t, h.HandleStream(context.Background(), stream, peer))
	assert.True(t, stream.CloseCalled)

	msg, err := handlers.ReadMessageWithContext(context.Background(), stream.Out)
	require.NoError(t, err)

	var p consensus.Proposal
	require.NoError(t, jam.Unmarshal(msg.Content, &p))
	assert.Equal(t, uint16(2), p.ValidatorID)
	assert.True(t, p.Valid)
	require.NotNil(t, p.Decision)
	assert.Equal(t, record.PartyDefendant, p.Decision.Winner)
	assert.Equal(t, verdict, p.Raw)
}

func TestProposalHandler_BadRequest(t *testing.T) {
	stream := streams.NewMockStream(nil)
	require.NoError(t, handlers.WriteMessageWithContext(context.Background(), stream.In, []byte{0xff}))

	h := handlers.NewProposalHandler(fixedService(0, verdict))
	err := h.HandleStream(context.Background(), stream, nil)
	require.Error(t, err)
	assert.True(t, stream.CanceledWrite)
	assert.Zero(t, stream.Out.Len())
}

type node struct {
	pub       ed25519.PublicKey
	transport *transport.Transport
	manager   *protocol.Manager
}

func newNode(t *testing.T, allowed crypto.ED25519PublicKeySet) *node {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tlsCert, err := cert.NewGenerator(cert.Config{
		PublicKey:          pub,
		PrivateKey:         priv,
		CertValidityPeriod: time.Hour,
	}).GenerateCertificate()
	require.NoError(t, err)

	m := protocol.NewManager()
	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       tlsCert,
		ListenAddr:    "127.0.0.1:0",
		CertValidator: cert.NewValidator(allowed),
		Handler:       m,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Stop() })
	return &node{pub: pub, transport: tr, manager: m}
}

func serve(t *testing.T, n *node, v consensus.Validator) string {
	t.Helper()
	n.manager.Registry.RegisterHandler(protocol.StreamKindProposal, handlers.NewProposalHandler(v))
	require.NoError(t, n.transport.Start())
	return n.transport.Addr().String()
}

func TestRemoteValidator_Loopback(t *testing.T) {
	server := newNode(t, nil)
	addr := serve(t, server, fixedService(3, "```json\n"+verdict+"\n```"))
	client := newNode(t, nil)

	remote := handlers.NewRemoteValidator(3, addr, server.pub, client.transport, client.manager.Registry)
	assert.Equal(t, uint16(3), remote.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		p := remote.Propose(ctx, request())
		require.True(t, p.Valid, p.Reason)
		assert.Equal(t, uint16(3), p.ValidatorID)
		assert.Equal(t, record.PartyDefendant, p.Decision.Winner)
	}
	assert.Len(t, client.transport.ListConnections(), 1)
}

func TestRemoteValidator_MixesWithLocalValidators(t *testing.T) {
	server := newNode(t, nil)
	addr := serve(t, server, fixedService(2, verdict))
	client := newNode(t, nil)

	engine, err := consensus.NewEngine([]consensus.Validator{
		fixedService(0, verdict),
		fixedService(1, testutils.Verdict(record.PartyPlaintiff, "Contract was signed.")),
		handlers.NewRemoteValidator(2, addr, server.pub, client.transport, client.manager.Registry),
	}, consensus.Config{Quorum: consensus.DefaultQuorum, Timeout: 5 * time.Second})
	require.NoError(t, err)

	res, proposals, err := engine.Resolve(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, proposals, 3)
	assert.Equal(t, record.PartyDefendant, res.Winner)
	assert.Equal(t, []uint16{0, 2}, res.Contributors)
}

func TestRemoteValidator_IDMismatch(t *testing.T) {
	server := newNode(t, nil)
	addr := serve(t, server, fixedService(3, verdict))
	client := newNode(t, nil)

	remote := handlers.NewRemoteValidator(4, addr, server.pub, client.transport, client.manager.Registry)
	p := remote.Propose(context.Background(), request())
	assert.False(t, p.Valid)
	assert.Equal(t, uint16(4), p.ValidatorID)
	assert.Contains(t, p.Reason, "validator id mismatch")
}

func TestRemoteValidator_RemoteOutputRecheckedLocally(t *testing.T) {
	server := newNode(t, nil)
	addr := serve(t, server, fixedService(1, `{"winner":"nobody","reasoning":"r"}`))
	client := newNode(t, nil)

	p := handlers.NewRemoteValidator(1, addr, server.pub, client.transport, client.manager.Registry).
		Propose(context.Background(), request())
	assert.False(t, p.Valid)
	assert.Nil(t, p.Decision)
}

func TestRemoteValidator_UnknownClientRejected(t *testing.T) {
	client := newNode(t, nil)
	allowed := crypto.ED25519PublicKeySet{}
	allowed.Add(testutils.RandomED25519PublicKey(t))

	server := newNode(t, allowed)
	addr := serve(t, server, fixedService(0, verdict))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p := handlers.NewRemoteValidator(0, addr, server.pub, client.transport, client.manager.Registry).Propose(ctx, request())
	assert.False(t, p.Valid)
	assert.Contains(t, p.Reason, "oracle")
}

func TestRemoteValidator_Unreachable(t *testing.T) {
	server := newNode(t, nil)
	addr := serve(t, server, fixedService(0, verdict))
	require.NoError(t, server.transport.Stop())
	client := newNode(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	p := handlers.NewRemoteValidator(0, addr, server.pub, client.transport, client.manager.Registry).Propose(ctx, request())
	assert.False(t, p.Valid)
	assert.Contains(t, p.Reason, "oracle")
}
