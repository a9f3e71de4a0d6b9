package networker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/connection"
	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/metrics"
	"github.com/boop-box/boopbox-go/pkg/transport"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

const waitTimeout = 2 * time.Second

func testCreds() config.ConnectionCredentials {
	return config.ConnectionCredentials{Host: "x", Port: 443, User: "a", Secret: "b"}
}

// fakeStore is an in-memory config.Store.
type fakeStore struct {
	mu      sync.Mutex
	creds   *config.ConnectionCredentials
	getErr  error
	setErr  error
	written []config.ConnectionCredentials
}

func (s *fakeStore) GetConnection(context.Context) (*config.ConnectionCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.creds == nil {
		return nil, nil
	}
	c := *s.creds
	return &c, nil
}

func (s *fakeStore) SetConnection(_ context.Context, creds config.ConnectionCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.creds = &creds
	s.written = append(s.written, creds)
	return nil
}

func (s *fakeStore) writes() []config.ConnectionCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]config.ConnectionCredentials(nil), s.written...)
}

// fakeSession scripts responses for one session.
type fakeSession struct {
	mu           sync.Mutex
	checkUID     func(wire.UID) (wire.CheckUIDResult, error)
	getAudio     func(wire.AchievementID) ([]byte, bool, error)
	keepaliveErr error
	keepalives   int
	closed       int
}

func (s *fakeSession) CheckUID(_ context.Context, uid wire.UID) (wire.CheckUIDResult, error) {
	if s.checkUID == nil {
		return wire.OkResult(nil), nil
	}
	return s.checkUID(uid)
}

func (s *fakeSession) GetAudio(_ context.Context, id wire.AchievementID) ([]byte, bool, error) {
	if s.getAudio == nil {
		return nil, false, nil
	}
	return s.getAudio(id)
}

func (s *fakeSession) Keepalive(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepalives++
	return s.keepaliveErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) setKeepaliveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepaliveErr = err
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeConnector hands out sessions or errors in order. When the script runs
// out it repeats the last entry.
type fakeConnector struct {
	mu       sync.Mutex
	script   []connectResult
	attempts []config.ConnectionCredentials
}

type connectResult struct {
	session *fakeSession
	err     error
}

func (c *fakeConnector) Connect(_ context.Context, creds config.ConnectionCredentials) (connection.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, creds)
	if len(c.script) == 0 {
		return nil, fmt.Errorf("%w: nothing scripted", transport.ErrDial)
	}
	r := c.script[0]
	if len(c.script) > 1 {
		c.script = c.script[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.session, nil
}

func (c *fakeConnector) push(results ...connectResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, results...)
}

func (c *fakeConnector) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attempts)
}

// syncCommand is ignored by the loop. Sending it on the unbuffered command
// channel guarantees everything before it has been processed.
type syncCommand struct{}

func (syncCommand) command() {}

type harness struct {
	n         *Networker
	store     *fakeStore
	connector *fakeConnector
	commands  chan Command
	tick      chan time.Time
	cancel    context.CancelFunc
	result    chan error
}

func startNetworker(t *testing.T, store *fakeStore, connector *fakeConnector, mutate ...func(*Config)) *harness {
	t.Helper()

	commands := make(chan Command)
	cfg := DefaultConfig()
	cfg.Connector = connector
	cfg.Store = store
	cfg.Commands = commands
	for _, m := range mutate {
		m(&cfg)
	}

	n, err := New(cfg)
	require.NoError(t, err)
	tick := make(chan time.Time)
	n.tick = tick

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		n:         n,
		store:     store,
		connector: connector,
		commands:  commands,
		tick:      tick,
		cancel:    cancel,
		result:    make(chan error, 1),
	}
	go func() { h.result <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-n.Done()
	})
	return h
}

// fire delivers one tick and waits until it has been handled.
func (h *harness) fire(t *testing.T) {
	t.Helper()
	select {
	case h.tick <- time.Now():
	case <-time.After(waitTimeout):
		t.Fatal("loop did not accept tick")
	}
	h.sync(t)
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	select {
	case h.commands <- syncCommand{}:
	case <-time.After(waitTimeout):
		t.Fatal("loop did not accept command")
	}
}

func (h *harness) expectStatus(t *testing.T, want ...connection.Status) {
	t.Helper()
	for _, w := range want {
		select {
		case got, ok := <-h.n.Status():
			require.True(t, ok, "status channel closed, want %s", w)
			require.Equal(t, w, got)
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
}

func (h *harness) expectNoStatus(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.n.Status():
		t.Fatalf("unexpected status %s", got)
	default:
	}
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.result:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func storeWith(creds config.ConnectionCredentials) *fakeStore {
	return &fakeStore{creds: &creds}
}

func TestNewRequiresConnectorAndStore(t *testing.T) {
	_, err := New(Config{Store: &fakeStore{}})
	assert.Error(t, err)

	_, err = New(Config{Connector: &fakeConnector{}})
	assert.Error(t, err)

	n, err := New(Config{Connector: &fakeConnector{}, Store: &fakeStore{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTickInterval, n.config.TickInterval)
	assert.Equal(t, DefaultQueueSize, cap(n.commands))
	assert.Equal(t, DefaultStatusBuffer, cap(n.status))
}

func TestStartupWithoutCredentials(t *testing.T) {
	h := startNetworker(t, &fakeStore{}, &fakeConnector{})
	h.expectStatus(t, connection.StatusNoConfig)

	for range 3 {
		h.fire(t)
	}
	h.expectNoStatus(t)
	assert.Zero(t, h.connector.attemptCount())
}

func TestStartupConnects(t *testing.T) {
	session := &fakeSession{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)

	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)
	require.Equal(t, 1, connector.attemptCount())
	assert.Equal(t, testCreds(), connector.attempts[0])

	// Subsequent ticks only keep the session alive.
	h.fire(t)
	h.fire(t)
	h.expectNoStatus(t)
	assert.Equal(t, 1, connector.attemptCount())
	assert.Equal(t, 2, session.keepalives)
}

func TestTransientFailureRetriesEveryTick(t *testing.T) {
	connector := &fakeConnector{}
	connector.push(connectResult{err: fmt.Errorf("%w: refused", transport.ErrDial)})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)

	for i := 1; i <= 3; i++ {
		h.fire(t)
		h.expectStatus(t, connection.StatusDisconnected)
		h.expectNoStatus(t)
		assert.Equal(t, i, connector.attemptCount())
	}
}

type countingMetrics struct {
	metrics.Noop
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) ConnectAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func TestRejectedCredentialsSuppressRetries(t *testing.T) {
	connector := &fakeConnector{}
	connector.push(connectResult{err: fmt.Errorf("%w", transport.ErrInvalidCredentials)})
	store := storeWith(testCreds())
	rec := &countingMetrics{}

	h := startNetworker(t, store, connector, func(c *Config) { c.Metrics = rec })
	h.expectStatus(t, connection.StatusDisconnected)

	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusInvalidCredentials)

	for range 5 {
		h.fire(t)
	}
	h.expectNoStatus(t)
	assert.Equal(t, 1, connector.attemptCount())
	assert.Equal(t, 1, rec.count(metrics.OutcomeRejected))

	// New credentials lift the suppression.
	session := &fakeSession{}
	connector.mu.Lock()
	connector.script = []connectResult{{session: session}}
	connector.mu.Unlock()

	updated := testCreds()
	updated.Secret = "c"
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, h.n.Client().SetConnection(ctx, updated))
	h.expectStatus(t, connection.StatusDisconnected)
	assert.Equal(t, []config.ConnectionCredentials{updated}, store.writes())

	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)
	require.Equal(t, 2, connector.attemptCount())
	assert.Equal(t, updated, connector.attempts[1])
	assert.Equal(t, 1, rec.count(metrics.OutcomeConnected))
}

func TestCommandsWithoutSession(t *testing.T) {
	h := startNetworker(t, &fakeStore{}, &fakeConnector{})
	h.expectStatus(t, connection.StatusNoConfig)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	client := h.n.Client()

	assert.Equal(t, wire.ErrorResult(), client.CheckUID(ctx, wire.UID{1}))
	data, ok := client.GetAudio(ctx, wire.AchievementID{1})
	assert.False(t, ok)
	assert.Nil(t, data)

	h.expectNoStatus(t)
	assert.Zero(t, h.connector.attemptCount())
}

func TestCommandsOverSession(t *testing.T) {
	a1 := wire.AchievementID{0xaa}
	calls := 0
	session := &fakeSession{
		checkUID: func(wire.UID) (wire.CheckUIDResult, error) {
			calls++
			if calls == 1 {
				return wire.OkResult(nil), nil
			}
			return wire.ThrottledResult(), nil
		},
		getAudio: func(id wire.AchievementID) ([]byte, bool, error) {
			if id == a1 {
				return []byte("boop"), true, nil
			}
			return nil, false, nil
		},
	}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	client := h.n.Client()
	uid := wire.UID{1, 2, 3, 4, 5, 6, 7}

	first := client.CheckUID(ctx, uid)
	assert.Equal(t, wire.CheckUIDOk, first.Status)
	assert.Empty(t, first.Achievements)
	assert.Equal(t, wire.ThrottledResult(), client.CheckUID(ctx, uid))

	data, ok := client.GetAudio(ctx, a1)
	assert.True(t, ok)
	assert.Equal(t, []byte("boop"), data)

	_, ok = client.GetAudio(ctx, wire.AchievementID{0xbb})
	assert.False(t, ok)

	h.expectNoStatus(t)
	assert.Zero(t, session.closeCount())
}

func TestKeepaliveFailureDropsSessionOnce(t *testing.T) {
	first := &fakeSession{}
	second := &fakeSession{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: first}, connectResult{session: second})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	first.setKeepaliveErr(errors.New("broken pipe"))
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected)
	h.expectNoStatus(t)
	assert.Equal(t, 1, first.closeCount())
	assert.Equal(t, 1, connector.attemptCount())

	// The next tick reconnects.
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)
	assert.Equal(t, 2, connector.attemptCount())
	assert.Zero(t, second.closeCount())
}

func TestCommandFailureDropsSession(t *testing.T) {
	session := &fakeSession{
		checkUID: func(wire.UID) (wire.CheckUIDResult, error) {
			return wire.CheckUIDResult{}, errors.New("connection reset")
		},
		getAudio: func(wire.AchievementID) ([]byte, bool, error) {
			return nil, false, errors.New("connection reset")
		},
	}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	client := h.n.Client()

	assert.Equal(t, wire.ErrorResult(), client.CheckUID(ctx, wire.UID{9}))
	h.expectStatus(t, connection.StatusDisconnected)
	assert.Equal(t, 1, session.closeCount())

	// The session is gone, so the next command does no I/O.
	_, ok := client.GetAudio(ctx, wire.AchievementID{1})
	assert.False(t, ok)
	h.expectNoStatus(t)
}

func TestSetConnectionDropsLiveSession(t *testing.T) {
	session := &fakeSession{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})
	store := storeWith(testCreds())

	h := startNetworker(t, store, connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	reply := make(chan struct{}, 1)
	h.commands <- SetConnectionCommand{Credentials: testCreds(), Reply: reply}
	select {
	case <-reply:
	case <-time.After(waitTimeout):
		t.Fatal("no acknowledgement")
	}
	h.expectStatus(t, connection.StatusDisconnected)
	assert.Equal(t, 1, session.closeCount())
	assert.Len(t, store.writes(), 1)
}

func TestSetConnectionWithoutReply(t *testing.T) {
	h := startNetworker(t, &fakeStore{}, &fakeConnector{})
	h.expectStatus(t, connection.StatusNoConfig)

	h.commands <- SetConnectionCommand{Credentials: testCreds()}
	h.sync(t)
	h.expectStatus(t, connection.StatusDisconnected)
	assert.Len(t, h.store.writes(), 1)
}

func TestStoreReadFailureIsFatal(t *testing.T) {
	store := &fakeStore{getErr: errors.New("disk on fire")}
	n, err := New(Config{Connector: &fakeConnector{}, Store: store})
	require.NoError(t, err)

	err = n.Run(context.Background())
	require.ErrorIs(t, err, ErrConfigStore)

	_, open := <-n.Status()
	assert.False(t, open)
}

func TestStoreWriteFailureIsFatal(t *testing.T) {
	store := &fakeStore{setErr: errors.New("disk on fire")}
	h := startNetworker(t, store, &fakeConnector{})
	h.expectStatus(t, connection.StatusNoConfig)

	h.commands <- SetConnectionCommand{Credentials: testCreds()}
	select {
	case err := <-h.result:
		require.ErrorIs(t, err, ErrConfigStore)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
	}
}

func TestClosedCommandChannelStopsRun(t *testing.T) {
	session := &fakeSession{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	close(h.commands)
	select {
	case err := <-h.result:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, session.closeCount())
	_, open := <-h.n.Status()
	assert.False(t, open)
}

func TestShutdown(t *testing.T) {
	session := &fakeSession{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: session})

	h := startNetworker(t, storeWith(testCreds()), connector)
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	require.NoError(t, h.stop(t))
	assert.Equal(t, 1, session.closeCount())

	client := h.n.Client()
	assert.ErrorIs(t, client.SetConnection(context.Background(), testCreds()), ErrStopped)
	assert.Equal(t, wire.ErrorResult(), client.CheckUID(context.Background(), wire.UID{}))
	_, ok := client.GetAudio(context.Background(), wire.AchievementID{})
	assert.False(t, ok)
}

func TestRunTwice(t *testing.T) {
	h := startNetworker(t, &fakeStore{}, &fakeConnector{})
	h.expectStatus(t, connection.StatusNoConfig)

	assert.ErrorIs(t, h.n.Run(context.Background()), ErrAlreadyRunning)
}

func TestFirstTickIsImmediate(t *testing.T) {
	connector := &fakeConnector{}
	connector.push(connectResult{session: &fakeSession{}})
	n, err := New(Config{
		Connector:    connector,
		Store:        storeWith(testCreds()),
		TickInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-n.Done()
	}()
	go func() { _ = n.Run(ctx) }()

	var seen []connection.Status
	deadline := time.After(waitTimeout)
	for len(seen) < 3 {
		select {
		case s := <-n.Status():
			seen = append(seen, s)
		case <-deadline:
			t.Fatalf("statuses so far: %v", seen)
		}
	}
	assert.Equal(t, []connection.Status{
		connection.StatusDisconnected,
		connection.StatusDisconnected,
		connection.StatusConnected,
	}, seen)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *recordingLogger) Log(e log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func TestStatusTransitionsAreLogged(t *testing.T) {
	plog := &recordingLogger{}
	connector := &fakeConnector{}
	connector.push(connectResult{session: &fakeSession{}})

	h := startNetworker(t, storeWith(testCreds()), connector, func(c *Config) { c.ProtocolLogger = plog })
	h.expectStatus(t, connection.StatusDisconnected)
	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)

	plog.mu.Lock()
	defer plog.mu.Unlock()
	require.Len(t, plog.events, 3)
	last := plog.events[2]
	assert.Equal(t, log.LayerNetworker, last.Layer)
	assert.Equal(t, log.CategoryState, last.Category)
	require.NotNil(t, last.StateChange)
	assert.Equal(t, "DISCONNECTED", last.StateChange.OldState)
	assert.Equal(t, "CONNECTED", last.StateChange.NewState)
}

func TestWithConfigManager(t *testing.T) {
	backend := config.NewMemoryBackend(nil)
	manager := config.NewManager(config.ManagerConfig{Backend: backend})
	ctx, cancel := context.WithCancel(context.Background())
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		_ = manager.Run(ctx)
	}()
	defer func() {
		cancel()
		<-managerDone
	}()

	connector := &fakeConnector{}
	connector.push(connectResult{session: &fakeSession{}})
	cfg := DefaultConfig()
	cfg.Connector = connector
	cfg.Store = manager.Client()
	cfg.Commands = make(chan Command)
	n, err := New(cfg)
	require.NoError(t, err)
	tick := make(chan time.Time)
	n.tick = tick
	go func() { _ = n.Run(ctx) }()
	defer func() {
		cancel()
		<-n.Done()
	}()

	h := &harness{n: n, connector: connector, commands: cfg.Commands, tick: tick}
	h.expectStatus(t, connection.StatusNoConfig)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), waitTimeout)
	defer reqCancel()
	require.NoError(t, n.Client().SetConnection(reqCtx, testCreds()))
	h.expectStatus(t, connection.StatusDisconnected)
	assert.Equal(t, 1, backend.Saves())

	h.fire(t)
	h.expectStatus(t, connection.StatusDisconnected, connection.StatusConnected)
}
