package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the capacity of the Manager request channel.
const DefaultQueueSize = 8

// ErrStoreUnavailable is returned by Client when the Manager is not running
// or its Backend failed.
var ErrStoreUnavailable = errors.New("configuration store unavailable")

// Backend persists the credentials. Load returns nil, nil when nothing is stored.
type Backend interface {
	Load() (*ConnectionCredentials, error)
	Save(creds ConnectionCredentials) error
}

// Store is the configuration store interface consumed by the networker.
type Store interface {
	GetConnection(ctx context.Context) (*ConnectionCredentials, error)
	SetConnection(ctx context.Context, creds ConnectionCredentials) error
}

// Request is a message handled by Manager.Run.
type Request interface {
	request()
}

// GetConnectionRequest asks for the stored credentials.
type GetConnectionRequest struct {
	Reply chan<- GetConnectionReply
}

// GetConnectionReply answers a GetConnectionRequest. Credentials is nil
// when none are stored.
type GetConnectionReply struct {
	Credentials *ConnectionCredentials
	Err         error
}

// SetConnectionRequest replaces the stored credentials.
type SetConnectionRequest struct {
	Credentials ConnectionCredentials
	Reply       chan<- error
}

func (GetConnectionRequest) request() {}
func (SetConnectionRequest) request() {}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Backend Backend

	// QueueSize is the request channel capacity (default 8).
	QueueSize int

	Logger *slog.Logger
}

// Manager serves configuration requests from a single goroutine.
type Manager struct {
	backend  Backend
	requests chan Request
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

// NewManager creates a Manager. Call Run to start serving.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Backend == nil {
		cfg.Backend = NewMemoryBackend(nil)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Manager{
		backend:  cfg.Backend,
		requests: make(chan Request, cfg.QueueSize),
		done:     make(chan struct{}),
		logger:   cfg.Logger,
	}
}

// Requests returns the send side of the request channel.
func (m *Manager) Requests() chan<- Request {
	return m.requests
}

// Client returns a Store that talks to this Manager.
func (m *Manager) Client() *Client {
	return &Client{requests: m.requests, done: m.done}
}

// Run serves requests until ctx is cancelled. Backend errors are reported
// to the requester and do not stop the loop.
func (m *Manager) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.done) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.requests:
			m.handle(req)
		}
	}
}

func (m *Manager) handle(req Request) {
	switch r := req.(type) {
	case GetConnectionRequest:
		creds, err := m.backend.Load()
		if err != nil {
			m.debugLog("load failed", "error", err)
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		r.Reply <- GetConnectionReply{Credentials: creds, Err: err}
	case SetConnectionRequest:
		err := m.backend.Save(r.Credentials)
		if err != nil {
			m.debugLog("save failed", "error", err)
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		} else {
			m.debugLog("connection saved", "server", r.Credentials.String())
		}
		r.Reply <- err
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// Client sends requests to a Manager and waits for the reply.
type Client struct {
	requests chan<- Request
	done     <-chan struct{}
}

// NewClient returns a Client for an externally owned request channel.
// done may be nil.
func NewClient(requests chan<- Request, done <-chan struct{}) *Client {
	return &Client{requests: requests, done: done}
}

// GetConnection returns the stored credentials, or nil if none are stored.
func (c *Client) GetConnection(ctx context.Context) (*ConnectionCredentials, error) {
	reply := make(chan GetConnectionReply, 1)
	if err := c.send(ctx, GetConnectionRequest{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.Credentials, r.Err
	case <-c.done:
		return nil, ErrStoreUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetConnection stores creds and returns once the Backend acknowledged the write.
func (c *Client) SetConnection(ctx context.Context, creds ConnectionCredentials) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, SetConnectionRequest{Credentials: creds, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStoreUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, req Request) error {
	select {
	case c.requests <- req:
		return nil
	case <-c.done:
		return ErrStoreUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Store = (*Client)(nil)

// MemoryBackend keeps credentials in memory.
type MemoryBackend struct {
	mu    sync.Mutex
	creds *ConnectionCredentials
	saves int
}

// NewMemoryBackend returns a MemoryBackend holding initial (may be nil).
func NewMemoryBackend(initial *ConnectionCredentials) *MemoryBackend {
	b := &MemoryBackend{}
	if initial != nil {
		c := *initial
		b.creds = &c
	}
	return b
}

// Load implements Backend.
func (b *MemoryBackend) Load() (*ConnectionCredentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.creds == nil {
		return nil, nil
	}
	c := *b.creds
	return &c, nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(creds ConnectionCredentials) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds = &creds
	b.saves++
	return nil
}

// Saves returns how many times Save was called.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
