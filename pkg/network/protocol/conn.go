package protocol

import (
	"context"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/network/transport"
)

// ProtocolConn multiplexes typed streams over a transport connection.
type ProtocolConn struct {
	TConn    *transport.Conn
	registry *Registry
}

func NewProtocolConn(tConn *transport.Conn, registry *Registry) *ProtocolConn {
	return &ProtocolConn{
		TConn:    tConn,
		registry: registry,
	}
}

// OpenStream opens a stream and announces its kind.
func (pc *ProtocolConn) OpenStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	stream, err := pc.TConn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

// AcceptStream accepts one inbound stream and hands it to its handler on a
// new goroutine.
func (pc *ProtocolConn) AcceptStream() error {
	stream, err := pc.TConn.AcceptStream()
	if err != nil {
		return err
	}

	kind := make([]byte, 1)
	if _, err := io.ReadFull(stream, kind); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to read stream kind: %w", err)
	}
	if err := pc.registry.ValidateKind(kind[0]); err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return err
	}

	handler, err := pc.registry.GetHandler(StreamKind(kind[0]))
	if err != nil {
		stream.CancelRead(0)
		_ = stream.Close()
		return err
	}

	go func() {
		if err := handler.HandleStream(pc.TConn.Context(), stream, pc.TConn.PeerKey()); err != nil {
			log.Network.Warn().Err(err).Uint8("kind", kind[0]).Msg("stream handler error")
		}
	}()
	return nil
}

func writeWithContext(ctx context.Context, stream quic.Stream, p []byte) error {
	done := make(chan error, 1)

	go func() {
		_, err := stream.Write(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pc *ProtocolConn) Close() error {
	return pc.TConn.Close()
}
