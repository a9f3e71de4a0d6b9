package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/boop-box/boopbox-go/pkg/log"
)

// Defaults.
const (
	DefaultThrottleWindow   = 10 * time.Second
	DefaultIdleTimeout      = 30 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

// ErrServerRunning is returned by Serve on a server that is already serving.
var ErrServerRunning = errors.New("server already running")

// Config configures a Server.
type Config struct {
	// TLSConfig carries the server certificate (required).
	TLSConfig *tls.Config

	// Catalog answers requests (required).
	Catalog *Catalog

	// ThrottleWindow is the per-tag CheckUID rate limit (default 10s).
	// Negative disables throttling.
	ThrottleWindow time.Duration

	// IdleTimeout closes connections that send nothing for this long
	// (default 30s).
	IdleTimeout time.Duration

	// HandshakeTimeout bounds the TLS handshake (default 5s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each response write (default 5s).
	WriteTimeout time.Duration

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger

	Logger *slog.Logger
}

// Server accepts device connections and answers their requests.
type Server struct {
	config   Config
	tlsConf  *tls.Config
	throttle *Throttle
	plog     log.Logger

	listenerMu sync.Mutex
	listener   net.Listener

	conns   map[*serverConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Server.
func New(config Config) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("Catalog is required")
	}
	if config.ThrottleWindow == 0 {
		config.ThrottleWindow = DefaultThrottleWindow
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	tlsConf := config.TLSConfig.Clone()
	if tlsConf.MinVersion == 0 {
		tlsConf.MinVersion = tls.VersionTLS12
	}

	return &Server{
		config:   config,
		tlsConf:  tlsConf,
		throttle: NewThrottle(config.ThrottleWindow),
		plog:     log.OrNoop(config.ProtocolLogger),
		conns:    make(map[*serverConn]struct{}),
	}, nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes all
// connections and returns nil. Serve takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		ln.Close()
		return ErrServerRunning
	}
	defer s.running.Store(false)

	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	stop := context.AfterFunc(s.ctx, func() { ln.Close() })
	defer stop()

	s.debugLog("serving", "addr", ln.Addr().String())
	err := s.acceptLoop(ln)

	ln.Close()
	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()
	s.wg.Wait()

	if s.ctx.Err() != nil {
		return nil
	}
	return err
}

// Addr returns the listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	hsCtx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	tlsConn := tls.Server(raw, s.tlsConf)
	err := tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		raw.Close()
		s.debugLog("TLS handshake failed", "remote", raw.RemoteAddr().String(), "error", err)
		return
	}

	c := &serverConn{
		id:     uuid.New().String(),
		conn:   tlsConn,
		remote: raw.RemoteAddr().String(),
		server: s,
	}

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	c.logState("", "CONNECTED")
	c.serve()
	c.Close()
	c.logState("CONNECTED", "DISCONNECTED")

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
