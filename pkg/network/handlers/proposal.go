package handlers

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/equivalence"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/protocol"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/transport"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/serialization/codec/jam"
)

// ProposalHandler answers proposal requests with a local validator.
//
// Request:  --> consensus.Request --> FIN
// Response: <-- consensus.Proposal --> FIN
type ProposalHandler struct {
	validator consensus.Validator
}

func NewProposalHandler(v consensus.Validator) *ProposalHandler {
	return &ProposalHandler{validator: v}
}

func (h *ProposalHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		stream.CancelRead(0)
		stream.CancelWrite(0)
		return fmt.Errorf("failed to read proposal request: %w", err)
	}

	var req consensus.Request
	if err := jam.Unmarshal(msg.Content, &req); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("failed to unmarshal proposal request: %w", err)
	}

	proposal := h.validator.Propose(ctx, req)
	log.Network.Debug().
		Hex("peer", peerKey).
		Uint64("case", req.CaseID).
		Str("attempt", req.Attempt.String()).
		Bool("valid", proposal.Valid).
		Msg("served proposal")

	resp, err := jam.Marshal(proposal)
	if err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, resp); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("failed to write proposal: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// RemoteValidator is a consensus.Validator served by another node. The remote
// output is re-checked locally against the decision schema; the remote's own
// parse is not trusted.
type RemoteValidator struct {
	id        uint16
	addr      string
	peerKey   ed25519.PublicKey
	transport *transport.Transport
	registry  *protocol.Registry
	check     equivalence.Validator

	mu sync.Mutex
}

var _ consensus.Validator = (*RemoteValidator)(nil)

func NewRemoteValidator(id uint16, addr string, peerKey ed25519.PublicKey, tr *transport.Transport, registry *protocol.Registry) *RemoteValidator {
	return &RemoteValidator{
		id:        id,
		addr:      addr,
		peerKey:   peerKey,
		transport: tr,
		registry:  registry,
		check:     equivalence.SchemaCheck{},
	}
}

func (r *RemoteValidator) ID() uint16 {
	return r.id
}

func (r *RemoteValidator) Propose(ctx context.Context, req consensus.Request) consensus.Proposal {
	p, err := r.request(ctx, req)
	if err != nil {
		return consensus.Invalid(r.id, "", oracle.Classify(ctx, err).Error())
	}
	if p.ValidatorID != r.id {
		return consensus.Invalid(r.id, p.Raw, fmt.Sprintf("validator id mismatch: got %d", p.ValidatorID))
	}
	if !p.Valid {
		return consensus.Invalid(r.id, p.Raw, p.Reason)
	}

	d, err := r.check.Accept(ctx, p.Raw, equivalence.Task{Description: req.Task, Criteria: req.Criteria})
	if err != nil {
		return consensus.Invalid(r.id, p.Raw, err.Error())
	}
	return consensus.Accepted(r.id, p.Raw, d)
}

func (r *RemoteValidator) request(ctx context.Context, req consensus.Request) (consensus.Proposal, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return consensus.Proposal{}, err
	}

	stream, err := protocol.NewProtocolConn(conn, r.registry).OpenStream(ctx, protocol.StreamKindProposal)
	if err != nil {
		return consensus.Proposal{}, err
	}
	defer stream.CancelRead(0)

	content, err := jam.Marshal(req)
	if err != nil {
		stream.CancelWrite(0)
		return consensus.Proposal{}, fmt.Errorf("failed to marshal proposal request: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, content); err != nil {
		stream.CancelWrite(0)
		return consensus.Proposal{}, err
	}
	if err := stream.Close(); err != nil {
		return consensus.Proposal{}, fmt.Errorf("failed to close send side: %w", err)
	}

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return consensus.Proposal{}, err
	}

	var p consensus.Proposal
	if err := jam.Unmarshal(msg.Content, &p); err != nil {
		return consensus.Proposal{}, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return p, nil
}

// conn returns the live connection to the peer, dialing if needed.
func (r *RemoteValidator) conn(ctx context.Context) (*transport.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.transport.GetConnection(r.peerKey); ok {
		return c, nil
	}
	c, err := r.transport.Connect(ctx, r.addr)
	if err != nil {
		return nil, err
	}
	if !c.PeerKey().Equal(r.peerKey) {
		_ = c.Close()
		return nil, fmt.Errorf("peer at %s presented key %x", r.addr, []byte(c.PeerKey()))
	}
	return c, nil
}
