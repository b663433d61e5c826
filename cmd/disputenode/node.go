package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/config"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/contract"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/crypto"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/equivalence"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/ledger"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/store"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/validator"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db/pebble"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/db/postgres"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/cert"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/handlers"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/protocol"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/transport"
)

const certValidity = 365 * 24 * time.Hour

var errDiverged = errors.New("replicas diverged")

// node is one replica: its ledger, the contract on top of it and, when peers
// are configured, the transport used to reach them.
type node struct {
	ledger    *ledger.Ledger
	contract  *contract.DisputeResolution
	transport *transport.Transport
}

func openNode(ctx context.Context, cfg config.Config) (*node, error) {
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(store.NewCases(kv))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	n := &node{ledger: l}
	var validators []consensus.Validator
	if len(cfg.Peers) == 0 {
		validators = validator.NewServices(cfg.Consensus.Validators, func(uint16) oracle.Invoker {
			return newInvoker(cfg)
		}, newEquivalence(cfg))
	} else {
		n.transport, validators, err = dialPeers(cfg)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
	}

	engine, err := consensus.NewEngine(validators, cfg.EngineConfig())
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	n.contract = contract.New(l, engine, contract.WithPolicy(cfg.Policy()))
	log.Root.Debug().
		Str("backend", cfg.Storage.Backend).
		Int("validators", engine.Size()).
		Str("policy", cfg.Policy().String()).
		Str("root", l.Root().String()).
		Msg("node ready")
	return n, nil
}

func (n *node) Close() error {
	var errs []error
	if n.transport != nil {
		errs = append(errs, n.transport.Stop())
	}
	errs = append(errs, n.ledger.Close())
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.Config) (db.KVStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return pebble.NewKVStore()
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.Storage.PostgresDSN)
	default:
		return pebble.Open(cfg.StorePath())
	}
}

// newInvoker gives every validator its own chat client so no state is shared
// between oracle calls of different validators.
func newInvoker(cfg config.Config) oracle.Invoker {
	chat := cfg.ChatConfig()
	return oracle.WithTimeout(oracle.NewChatClient(chat), chat.Timeout)
}

func newEquivalence(cfg config.Config) equivalence.Validator {
	if !cfg.Consensus.Judge {
		return equivalence.SchemaCheck{}
	}
	return equivalence.Judged{Base: equivalence.SchemaCheck{}, Judge: newInvoker(cfg)}
}

func localValidator(cfg config.Config) consensus.Validator {
	return validator.NewService(cfg.Node.Index, newInvoker(cfg), newEquivalence(cfg))
}

// newTransport builds the node's QUIC transport. Only configured peers may
// connect when any are configured.
func newTransport(cfg config.Config) (*transport.Transport, *protocol.Manager, error) {
	priv, err := cert.LoadOrCreateKey(cfg.KeyPath())
	if err != nil {
		return nil, nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	tlsCert, err := cert.NewGenerator(cert.Config{
		PublicKey:          pub,
		PrivateKey:         priv,
		CertValidityPeriod: certValidity,
	}).GenerateCertificate()
	if err != nil {
		return nil, nil, err
	}

	var allowed crypto.ED25519PublicKeySet
	if len(cfg.Peers) > 0 {
		allowed = crypto.ED25519PublicKeySet{}
		for _, p := range cfg.Peers {
			key, err := p.PublicKey()
			if err != nil {
				return nil, nil, err
			}
			allowed.Add(key)
		}
	}

	m := protocol.NewManager()
	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       tlsCert,
		ListenAddr:    cfg.Node.ListenAddr,
		CertValidator: cert.NewValidator(allowed),
		Handler:       m,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Network.Info().Hex("key", pub).Msg("node identity")
	return tr, m, nil
}

// dialPeers returns this node's own validator followed by one remote
// validator per peer. Connections are made lazily on first use.
func dialPeers(cfg config.Config) (*transport.Transport, []consensus.Validator, error) {
	tr, m, err := newTransport(cfg)
	if err != nil {
		return nil, nil, err
	}
	validators := []consensus.Validator{localValidator(cfg)}
	for _, p := range cfg.Peers {
		key, err := p.PublicKey()
		if err != nil {
			_ = tr.Stop()
			return nil, nil, err
		}
		validators = append(validators, handlers.NewRemoteValidator(p.Index, p.Address, key, tr, m.Registry))
	}
	return tr, validators, nil
}

// serve answers proposal requests with this node's validator until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	tr, m, err := newTransport(cfg)
	if err != nil {
		return err
	}
	m.Registry.RegisterHandler(protocol.StreamKindProposal, handlers.NewProposalHandler(localValidator(cfg)))
	if err := tr.Start(); err != nil {
		return err
	}
	log.Root.Info().Uint16("validator", cfg.Node.Index).Msg("serving proposals")

	<-ctx.Done()
	log.Root.Info().Msg("shutting down")
	return tr.Stop()
}

// verify compares the state of two pebble replicas.
func verify(dirA, dirB string, stdout io.Writer) error {
	a, err := openSnapshot(dirA)
	if err != nil {
		return err
	}
	b, err := openSnapshot(dirB)
	if err != nil {
		return err
	}

	rootA, err := ledger.StateRoot(a)
	if err != nil {
		return err
	}
	rootB, err := ledger.StateRoot(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "A %s\nB %s\n", rootA, rootB)

	diff, err := ledger.Diff(a, b)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(stdout, "converged")
		return nil
	}
	fmt.Fprint(stdout, diff)
	return errDiverged
}

func openSnapshot(dir string) (store.Snapshot, error) {
	kv, err := pebble.Open(dir)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("open %s: %w", dir, err)
	}
	cases := store.NewCases(kv)
	defer cases.Close()
	return cases.Snapshot()
}
