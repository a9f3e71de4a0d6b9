package networker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/connection"
	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/metrics"
	"github.com/boop-box/boopbox-go/pkg/transport"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Defaults.
const (
	DefaultTickInterval = 3 * time.Second
	DefaultQueueSize    = 8
	DefaultStatusBuffer = 8
)

// Errors.
var (
	// ErrConfigStore wraps configuration store failures, which stop Run.
	ErrConfigStore = errors.New("configuration store failed")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("networker already running")

	// ErrStopped is returned by Client when the Networker has exited.
	ErrStopped = errors.New("networker stopped")
)

// Config configures a Networker.
type Config struct {
	// Connector establishes sessions (required).
	Connector Connector

	// Store holds the credentials (required).
	Store config.Store

	// TickInterval drives keepalives and reconnection (default 3s).
	TickInterval time.Duration

	// QueueSize is the command channel capacity (default 8).
	QueueSize int

	// StatusBuffer is the status channel capacity (default 8).
	StatusBuffer int

	// Commands optionally supplies the command channel. Closing it stops Run.
	Commands chan Command

	// ProtocolLogger receives status transitions (optional).
	ProtocolLogger log.Logger

	// Metrics receives counters (optional).
	Metrics metrics.Recorder

	Logger *slog.Logger
}

// DefaultConfig returns a Config with default intervals and queue sizes.
// Connector and Store must still be set.
func DefaultConfig() Config {
	return Config{
		TickInterval: DefaultTickInterval,
		QueueSize:    DefaultQueueSize,
		StatusBuffer: DefaultStatusBuffer,
	}
}

// Networker serves commands over the single server session.
type Networker struct {
	config   Config
	commands chan Command
	status   chan connection.Status
	done     chan struct{}
	machine  *connection.Machine
	plog     log.Logger
	metrics  metrics.Recorder
	running  atomic.Bool

	// last is the most recently announced status.
	last connection.Status

	// tick replaces the ticker in tests.
	tick <-chan time.Time
}

// New creates a Networker. Call Run to start it.
func New(cfg Config) (*Networker, error) {
	if cfg.Connector == nil {
		return nil, errors.New("networker: Connector is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("networker: Store is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.StatusBuffer <= 0 {
		cfg.StatusBuffer = DefaultStatusBuffer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}

	commands := cfg.Commands
	if commands == nil {
		commands = make(chan Command, cfg.QueueSize)
	}

	return &Networker{
		config:   cfg,
		commands: commands,
		status:   make(chan connection.Status, cfg.StatusBuffer),
		done:     make(chan struct{}),
		machine:  connection.NewMachine(),
		plog:     log.OrNoop(cfg.ProtocolLogger),
		metrics:  cfg.Metrics,
		last:     connection.StatusNoConfig,
	}, nil
}

// Commands returns the send side of the command channel.
func (n *Networker) Commands() chan<- Command {
	return n.commands
}

// Status returns the status channel. It is closed when Run returns.
// Run blocks while it is full, so it must be drained.
func (n *Networker) Status() <-chan connection.Status {
	return n.status
}

// Done is closed when Run returns.
func (n *Networker) Done() <-chan struct{} {
	return n.done
}

// Client returns a Client bound to this Networker.
func (n *Networker) Client() *Client {
	return &Client{commands: n.commands, done: n.done}
}

// Run loads the credentials and serves commands and ticks until ctx is
// cancelled or the command channel is closed. It returns nil on shutdown and
// an error wrapping ErrConfigStore if the store fails.
func (n *Networker) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(n.done)
	defer close(n.status)
	defer n.machine.Close()

	creds, err := n.config.Store.GetConnection(ctx)
	if err != nil {
		return n.exit(ctx, fmt.Errorf("%w: get connection: %w", ErrConfigStore, err))
	}
	if err := n.announce(ctx, n.machine.Load(creds)); err != nil {
		return n.exit(ctx, err)
	}

	ticks, stop := n.ticker()
	defer stop()

	for {
		if ctx.Err() != nil {
			n.debugLog("networker shutting down")
			return nil
		}

		select {
		case <-ctx.Done():
			n.debugLog("networker shutting down")
			return nil

		case cmd, ok := <-n.commands:
			if !ok {
				n.debugLog("command channel closed")
				return nil
			}
			if err := n.handle(ctx, cmd); err != nil {
				return n.exit(ctx, err)
			}

		case <-ticks:
			if err := n.onTick(ctx); err != nil {
				return n.exit(ctx, err)
			}
		}
	}
}

// ticker returns the tick source. The real ticker fires once immediately so
// the first connection attempt does not wait a full interval.
func (n *Networker) ticker() (<-chan time.Time, func()) {
	if n.tick != nil {
		return n.tick, func() {}
	}

	t := time.NewTicker(n.config.TickInterval)
	out := make(chan time.Time)
	quit := make(chan struct{})
	go func() {
		next := time.Now()
		for {
			select {
			case out <- next:
			case <-quit:
				return
			}
			select {
			case next = <-t.C:
			case <-quit:
				return
			}
		}
	}()
	return out, func() {
		t.Stop()
		close(quit)
	}
}

// exit turns loop errors into Run's result: nil once ctx is done.
func (n *Networker) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		n.debugLog("networker shutting down", "error", err)
		return nil
	}
	if n.config.Logger != nil {
		n.config.Logger.Error("networker stopped", "error", err)
	}
	return err
}

func (n *Networker) handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case SetConnectionCommand:
		return n.setConnection(ctx, c)
	case CheckUIDCommand:
		return n.checkUID(ctx, c)
	case GetAudioCommand:
		return n.getAudio(ctx, c)
	default:
		n.debugLog("ignoring unknown command", "type", fmt.Sprintf("%T", cmd))
		return nil
	}
}

func (n *Networker) setConnection(ctx context.Context, c SetConnectionCommand) error {
	start := time.Now()
	status := n.machine.SetCredentials(c.Credentials)
	n.debugLog("credentials replaced", "server", c.Credentials.String())

	if err := n.config.Store.SetConnection(ctx, c.Credentials); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: set connection: %w", ErrConfigStore, err)
	}
	if err := n.announce(ctx, status); err != nil {
		return err
	}

	n.metrics.CommandResult(metrics.CommandSetConnection, "Ok", time.Since(start))
	if c.Reply != nil {
		deliver(c.Reply, struct{}{})
	}
	return nil
}

func (n *Networker) checkUID(ctx context.Context, c CheckUIDCommand) error {
	start := time.Now()
	s := n.machine.Session()
	if s == nil {
		n.metrics.CommandResult(metrics.CommandCheckUID, "NoSession", time.Since(start))
		deliver(c.Reply, wire.ErrorResult())
		return nil
	}

	result, err := s.CheckUID(ctx, c.UID)
	if err != nil {
		n.metrics.CommandResult(metrics.CommandCheckUID, "Failed", time.Since(start))
		if ctx.Err() != nil {
			deliver(c.Reply, wire.ErrorResult())
			return ctx.Err()
		}
		n.infoLog("lost connection", "command", metrics.CommandCheckUID, "error", err)
		aerr := n.announce(ctx, n.machine.Drop())
		deliver(c.Reply, wire.ErrorResult())
		return aerr
	}

	n.metrics.CommandResult(metrics.CommandCheckUID, result.Status.String(), time.Since(start))
	deliver(c.Reply, result)
	return nil
}

func (n *Networker) getAudio(ctx context.Context, c GetAudioCommand) error {
	start := time.Now()
	s := n.machine.Session()
	if s == nil {
		n.metrics.CommandResult(metrics.CommandGetAudio, "NoSession", time.Since(start))
		deliver(c.Reply, AudioResult{})
		return nil
	}

	data, present, err := s.GetAudio(ctx, c.ID)
	if err != nil {
		n.metrics.CommandResult(metrics.CommandGetAudio, "Failed", time.Since(start))
		if ctx.Err() != nil {
			deliver(c.Reply, AudioResult{})
			return ctx.Err()
		}
		n.infoLog("lost connection", "command", metrics.CommandGetAudio, "error", err)
		aerr := n.announce(ctx, n.machine.Drop())
		deliver(c.Reply, AudioResult{})
		return aerr
	}

	result := "Absent"
	if present {
		result = "Present"
		n.metrics.AudioBytes(len(data))
	}
	n.metrics.CommandResult(metrics.CommandGetAudio, result, time.Since(start))
	deliver(c.Reply, AudioResult{Data: data, Present: present})
	return nil
}

func (n *Networker) onTick(ctx context.Context) error {
	if s := n.machine.Session(); s != nil {
		start := time.Now()
		if err := s.Keepalive(ctx); err != nil {
			n.metrics.CommandResult(metrics.CommandKeepalive, "Failed", time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.infoLog("keepalive failed", "error", err)
			return n.announce(ctx, n.machine.Drop())
		}
		n.metrics.CommandResult(metrics.CommandKeepalive, "Ok", time.Since(start))
		return nil
	}

	if !n.machine.ShouldAttempt() {
		return nil
	}
	creds, _ := n.machine.Credentials()

	if err := n.announce(ctx, connection.StatusDisconnected); err != nil {
		return err
	}

	session, err := n.config.Connector.Connect(ctx, creds)
	switch {
	case err == nil:
		n.metrics.ConnectAttempt(metrics.OutcomeConnected)
		n.infoLog("connected", "server", creds.String())
		return n.announce(ctx, n.machine.Attached(session))

	case errors.Is(err, transport.ErrInvalidCredentials):
		n.metrics.ConnectAttempt(metrics.OutcomeRejected)
		n.infoLog("server rejected credentials", "server", creds.String(), "error", err)
		return n.announce(ctx, n.machine.Rejected())

	default:
		n.metrics.ConnectAttempt(metrics.OutcomeFailed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.debugLog("connect failed", "server", creds.String(), "error", err)
		return nil
	}
}

// announce publishes a status. It blocks while the status channel is full.
func (n *Networker) announce(ctx context.Context, status connection.Status) error {
	old := n.last
	n.last = status

	n.metrics.StatusChanged(status)
	n.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerNetworker,
		Category:  log.CategoryState,
		LocalRole: log.RoleDevice,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: status.String(),
		},
	})
	n.debugLog("status", "old", old, "new", status)

	select {
	case n.status <- status:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver sends a reply without blocking the loop.
func deliver[T any](reply chan<- T, v T) {
	select {
	case reply <- v:
	default:
	}
}

func (n *Networker) debugLog(msg string, args ...any) {
	if n.config.Logger != nil {
		n.config.Logger.Debug(msg, args...)
	}
}

func (n *Networker) infoLog(msg string, args ...any) {
	if n.config.Logger != nil {
		n.config.Logger.Info(msg, args...)
	}
}
