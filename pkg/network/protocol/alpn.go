package protocol

import (
	"fmt"
	"strings"
)

const (
	protocolPrefix = "dispute"
	currentVersion = "1"
)

// ProtocolID is the ALPN identifier, e.g. "dispute/1".
type ProtocolID struct {
	Version string
}

func NewProtocolID() *ProtocolID {
	return &ProtocolID{Version: currentVersion}
}

func (p *ProtocolID) String() string {
	return protocolPrefix + "/" + p.Version
}

func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}
	return &ProtocolID{Version: parts[1]}, nil
}

// AcceptableProtocols returns the ALPN identifiers this node speaks.
func AcceptableProtocols() []string {
	return []string{NewProtocolID().String()}
}
