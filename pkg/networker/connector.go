package networker

import (
	"context"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/connection"
	"github.com/boop-box/boopbox-go/pkg/transport"
)

// Connector establishes sessions. Errors wrapping
// transport.ErrInvalidCredentials mean the server rejected the credentials;
// every other error is transient.
type Connector interface {
	Connect(ctx context.Context, creds config.ConnectionCredentials) (connection.Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, creds config.ConnectionCredentials) (connection.Session, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, creds config.ConnectionCredentials) (connection.Session, error) {
	return f(ctx, creds)
}

// FromTransport adapts a transport.Connector.
func FromTransport(c *transport.Connector) Connector {
	return ConnectorFunc(func(ctx context.Context, creds config.ConnectionCredentials) (connection.Session, error) {
		s, err := c.Connect(ctx, creds)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

var _ connection.Session = (*transport.Session)(nil)
