package realtime

import (
	"context"

	"github.com/vovakirdan/bookchat/internal/identity"
	"github.com/vovakirdan/bookchat/internal/transport/ws"
)

// Conn is an established connection the manager writes intents to.
type Conn interface {
	Emit(event string, data any) error
	Close() error
}

// Dialer opens a connection for an identity. ctx bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, id identity.Identity, h ws.Handler) (Conn, error)
}

// WSDialer dials the websocket transport.
type WSDialer struct {
	Options ws.Options
}

func (d WSDialer) Dial(ctx context.Context, id identity.Identity, h ws.Handler) (Conn, error) {
	s, err := ws.Dial(ctx, d.Options, ws.Credentials{UserID: id.UserID, Token: id.Token}, h)
	if err != nil {
		return nil, err
	}
	return s, nil
}
