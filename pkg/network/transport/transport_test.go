package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acceptAll struct{}

func (acceptAll) ValidateCertificate(*x509.Certificate) error { return nil }

func (acceptAll) ExtractPublicKey(c *x509.Certificate) (ed25519.PublicKey, error) {
	key, ok := c.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("not ed25519")
	}
	return key, nil
}

type handler struct{}

func (handler) OnConnection(*Conn) error { return nil }
func (handler) Protocols() []string { return []string{"dispute/1"} }
func (handler) ValidateConnection(tls.ConnectionState) error { return nil }

func TestNewTransportRequiresConfig(t *testing.T) {
	cert := &tls.Certificate{}

	_, err := NewTransport(Config{CertValidator: acceptAll{}, Handler: handler{}})
	assert.Error(t, err)
	_, err = NewTransport(Config{TLSCert: cert, Handler: handler{}})
	assert.Error(t, err)
	_, err = NewTransport(Config{TLSCert: cert, CertValidator: acceptAll{}})
	assert.Error(t, err)

	tr, err := NewTransport(Config{TLSCert: cert, CertValidator: acceptAll{}, Handler: handler{}})
	require.NoError(t, err)
	assert.Nil(t, tr.Addr())
	assert.Empty(t, tr.ListConnections())
}

func TestConnectAfterStop(t *testing.T) {
	tr, err := NewTransport(Config{TLSCert: &tls.Certificate{}, CertValidator: acceptAll{}, Handler: handler{}})
	require.NoError(t, err)
	require.NoError(t, tr.Stop())

	_, err = tr.Connect(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrStopped)
}
