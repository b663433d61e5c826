package protocol

import (
	"crypto/tls"
	"fmt"

	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/transport"
)

// Manager implements transport.ConnectionHandler: every authenticated
// connection gets a stream accept loop dispatching into Registry.
type Manager struct {
	Registry *Registry
}

var _ transport.ConnectionHandler = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{Registry: NewRegistry()}
}

func (m *Manager) OnConnection(conn *transport.Conn) error {
	go m.handleStreams(NewProtocolConn(conn, m.Registry))
	return nil
}

func (m *Manager) handleStreams(protoConn *ProtocolConn) {
	defer protoConn.Close()

	for {
		if err := protoConn.AcceptStream(); err != nil {
			if !protoConn.TConn.Alive() {
				log.Network.Debug().Hex("peer", protoConn.TConn.PeerKey()).Msg("connection closed")
				return
			}
			log.Network.Debug().Err(err).Msg("stream accept error")
		}
	}
}

func (m *Manager) Protocols() []string {
	return AcceptableProtocols()
}

func (m *Manager) ValidateConnection(tlsState tls.ConnectionState) error {
	if tlsState.NegotiatedProtocol == "" {
		return fmt.Errorf("no protocol negotiated")
	}
	if _, err := ParseProtocolID(tlsState.NegotiatedProtocol); err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}
	return nil
}
