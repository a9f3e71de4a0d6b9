package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Default timeouts.
const (
	DefaultReadTimeout    = 2 * time.Second
	DefaultWriteTimeout   = 2 * time.Second
	DefaultConnectTimeout = 2 * time.Second
)

// Connection errors. Everything except ErrInvalidCredentials is transient.
var (
	// ErrInvalidCredentials indicates the server rejected authentication.
	ErrInvalidCredentials = errors.New("server rejected credentials")

	// ErrResolve indicates the host name could not be resolved.
	ErrResolve = errors.New("resolve failed")

	// ErrDial indicates no resolved address accepted a TCP connection.
	ErrDial = errors.New("dial failed")

	// ErrHandshake indicates the TLS handshake failed.
	ErrHandshake = errors.New("TLS handshake failed")

	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	// Trust checks the server certificate (default SystemRoots).
	Trust TrustVerifier

	Resolver Resolver
	Dialer   Dialer

	// ReadTimeout and WriteTimeout bound every I/O call on a Session (default 2s).
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ConnectTimeout bounds resolve, dial, handshake and authentication (default 2s).
	ConnectTimeout time.Duration

	// MaxAudioSize caps GetAudio payloads (default wire.DefaultMaxAudioSize).
	MaxAudioSize uint32

	// ProtocolLogger receives frame and message events (optional).
	ProtocolLogger log.Logger

	Logger *slog.Logger
}

// DefaultConnectorConfig returns a config verifying against the system roots.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		Trust:          SystemRoots(),
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		MaxAudioSize:   wire.DefaultMaxAudioSize,
	}
}

// Connector establishes authenticated Sessions.
type Connector struct {
	config ConnectorConfig
	plog   log.Logger
}

// NewConnector creates a Connector, filling zero fields with defaults.
func NewConnector(cfg ConnectorConfig) *Connector {
	if cfg.Trust == nil {
		cfg.Trust = SystemRoots()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxAudioSize == 0 {
		cfg.MaxAudioSize = wire.DefaultMaxAudioSize
	}
	return &Connector{config: cfg, plog: log.OrNoop(cfg.ProtocolLogger)}
}

// Connect resolves, dials, handshakes and authenticates. A rejected
// authentication returns an error wrapping ErrInvalidCredentials; any other
// error is transient.
func (c *Connector) Connect(ctx context.Context, creds config.ConnectionCredentials) (*Session, error) {
	authFrame, err := wire.EncodeAuth(creds.User, creds.Secret)
	if err != nil {
		// Credentials that cannot be framed can never be accepted.
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	addrs, err := c.config.Resolver.LookupHost(ctx, creds.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, creds.Host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolve, creds.Host)
	}

	raw, err := c.dial(ctx, addrs, creds.Port)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(raw, NewTLSConfig(c.config.Trust, creds.Host))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	s := &Session{
		id:       uuid.New().String(),
		conn:     newDeadlineConn(tlsConn, c.config.ReadTimeout, c.config.WriteTimeout),
		remote:   tlsConn.RemoteAddr().String(),
		user:     creds.User,
		maxAudio: c.config.MaxAudioSize,
		plog:     c.plog,
	}

	// Authentication runs under the connect deadline as a whole as well as
	// the per-call timeouts.
	stop := context.AfterFunc(ctx, func() { tlsConn.Close() })
	accepted, err := s.authenticate(authFrame)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !accepted {
		s.Close()
		return nil, ErrInvalidCredentials
	}

	c.debugLog("session established", "conn_id", s.id, "remote", s.remote, "user", creds.User)
	return s, nil
}

func (c *Connector) dial(ctx context.Context, addrs []string, port uint16) (net.Conn, error) {
	var lastErr error
	for _, addr := range addrs {
		conn, err := c.config.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.debugLog("dial failed", "addr", addr, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrDial, lastErr)
}

func (c *Connector) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}
