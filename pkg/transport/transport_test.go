package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boop-box/boopbox-go/pkg/cert"
	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// mockPeer is a scripted TLS server. handle runs once per accepted
// connection, after the peer has read the authentication frame.
type mockPeer struct {
	t        *testing.T
	ln       net.Listener
	id       *cert.Identity
	accept   bool
	handle   func(conn net.Conn)
	authSeen chan [2]string
	conns    atomic.Int32
	wg       sync.WaitGroup
}

func newMockPeer(t *testing.T, accept bool, handle func(conn net.Conn)) *mockPeer {
	t.Helper()

	id, err := cert.GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
	})
	require.NoError(t, err)

	p := &mockPeer{
		t:        t,
		ln:       ln,
		id:       id,
		accept:   accept,
		handle:   handle,
		authSeen: make(chan [2]string, 16),
	}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(func() {
		ln.Close()
		p.wg.Wait()
	})
	return p
}

func (p *mockPeer) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.conns.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer conn.Close()

			user, secret, err := wire.ReadAuth(conn)
			if err != nil {
				return
			}
			p.authSeen <- [2]string{user, secret}
			if err := wire.WriteAuthResponse(conn, p.accept); err != nil || !p.accept {
				return
			}
			if p.handle != nil {
				p.handle(conn)
			}
		}()
	}
}

func (p *mockPeer) addr() string {
	return p.ln.Addr().String()
}

// staticResolver maps every host to 127.0.0.1.
type staticResolver struct {
	err error
}

func (r staticResolver) LookupHost(_ context.Context, _ string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []string{"127.0.0.1"}, nil
}

// redirectDialer sends every dial to target.
type redirectDialer struct {
	target string
	err    error
	dials  atomic.Int32
}

func (d *redirectDialer) DialContext(ctx context.Context, network, _ string) (net.Conn, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, d.target)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

var scenarioCreds = config.ConnectionCredentials{Host: "x", Port: 443, User: "a", Secret: "b"}

func testConnector(p *mockPeer, mutate ...func(*ConnectorConfig)) (*Connector, *redirectDialer) {
	d := &redirectDialer{target: p.addr()}
	cfg := ConnectorConfig{
		Trust:        Insecure(),
		Resolver:     staticResolver{},
		Dialer:       d,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewConnector(cfg), d
}

func TestConnectCheckUIDScenario(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		for _, result := range []wire.CheckUIDResult{wire.OkResult(nil), wire.ThrottledResult()} {
			req, err := wire.ReadRequest(conn)
			if err != nil || req.Op != wire.OpCheckUID {
				return
			}
			if err := wire.WriteCheckUIDResponse(conn, result); err != nil {
				return
			}
		}
		io.Copy(io.Discard, conn)
	})
	connector, _ := testConnector(peer)

	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, [2]string{"a", "b"}, <-peer.authSeen)
	assert.NotEmpty(t, s.ID())

	uid := wire.UID{1, 2, 3, 4, 5, 6, 7}
	first, err := s.CheckUID(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, wire.CheckUIDOk, first.Status)
	assert.Empty(t, first.Achievements)

	second, err := s.CheckUID(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, wire.ThrottledResult(), second)
}

func TestConnectRejected(t *testing.T) {
	peer := newMockPeer(t, false, nil)
	connector, _ := testConnector(peer)

	s, err := connector.Connect(context.Background(), scenarioCreds)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConnectAuthTooLong(t *testing.T) {
	peer := newMockPeer(t, true, nil)
	connector, dialer := testConnector(peer)

	creds := scenarioCreds
	creds.Secret = string(make([]byte, 300))
	_, err := connector.Connect(context.Background(), creds)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, wire.ErrAuthTooLong)
	assert.Zero(t, dialer.dials.Load())
}

func TestConnectTransientFailures(t *testing.T) {
	peer := newMockPeer(t, true, nil)

	t.Run("resolve", func(t *testing.T) {
		connector, dialer := testConnector(peer, func(c *ConnectorConfig) {
			c.Resolver = staticResolver{err: errors.New("no such host")}
		})
		_, err := connector.Connect(context.Background(), scenarioCreds)
		assert.ErrorIs(t, err, ErrResolve)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
		assert.Zero(t, dialer.dials.Load())
	})

	t.Run("dial", func(t *testing.T) {
		connector, dialer := testConnector(peer)
		dialer.err = errors.New("connection refused")
		_, err := connector.Connect(context.Background(), scenarioCreds)
		assert.ErrorIs(t, err, ErrDial)
	})

	t.Run("untrusted certificate", func(t *testing.T) {
		connector, _ := testConnector(peer, func(c *ConnectorConfig) {
			c.Trust = SystemRoots()
		})
		_, err := connector.Connect(context.Background(), scenarioCreds)
		assert.ErrorIs(t, err, ErrHandshake)
	})
}

func TestConnectPinnedRoots(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) { io.Copy(io.Discard, conn) })
	connector, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.Trust = RootsVerifier{Roots: peer.id.CertPool()}
	})

	creds := scenarioCreds
	creds.Host = "localhost"
	s, err := connector.Connect(context.Background(), creds)
	require.NoError(t, err)
	s.Close()

	creds.Host = "wrong.example"
	_, err = connector.Connect(context.Background(), creds)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestGetAudio(t *testing.T) {
	payload := []byte("RIFF-fake-wave-data")
	peer := newMockPeer(t, true, func(conn net.Conn) {
		for {
			req, err := wire.ReadRequest(conn)
			if err != nil {
				return
			}
			present := req.AchievementID[0] == 1
			if err := wire.WriteGetAudioResponse(conn, payload, present); err != nil {
				return
			}
		}
	})
	connector, _ := testConnector(peer)
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	data, ok, err := s.GetAudio(context.Background(), wire.AchievementID{1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, data)

	data, ok, err = s.GetAudio(context.Background(), wire.AchievementID{2})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestGetAudioShortPayload(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		if _, err := wire.ReadRequest(conn); err != nil {
			return
		}
		// Advertise 100 bytes, send 10, hang up.
		conn.Write([]byte{0x01, 100, 0, 0, 0})
		conn.Write(make([]byte, 10))
	})
	connector, _ := testConnector(peer)
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.GetAudio(context.Background(), wire.AchievementID{})
	assert.ErrorIs(t, err, wire.ErrTruncated)
}

func TestKeepalive(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		for {
			req, err := wire.ReadRequest(conn)
			if err != nil || req.Op != wire.OpKeepalive {
				return
			}
			if err := wire.WriteKeepaliveResponse(conn); err != nil {
				return
			}
		}
	})
	connector, _ := testConnector(peer)
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Keepalive(context.Background()))
	}
}

func TestReadTimeout(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	})
	connector, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.ReadTimeout = 100 * time.Millisecond
	})
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	err = s.Keepalive(context.Background())
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExchangeCancelled(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	})
	connector, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.ReadTimeout = 10 * time.Second
	})
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = s.CheckUID(ctx, wire.UID{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSessionClosed(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) { io.Copy(io.Discard, conn) })
	connector, _ := testConnector(peer)
	s, err := connector.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err = s.CheckUID(context.Background(), wire.UID{})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestProtocolLogging(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) {
		if _, err := wire.ReadRequest(conn); err != nil {
			return
		}
		wire.WriteCheckUIDResponse(conn, wire.OkResult([]wire.AchievementID{{9}}))
		io.Copy(io.Discard, conn)
	})
	rec := &recordingLogger{}
	connector, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.ProtocolLogger = rec
	})

	creds := scenarioCreds
	creds.Secret = "topsecret"
	s, err := connector.Connect(context.Background(), creds)
	require.NoError(t, err)
	_, err = s.CheckUID(context.Background(), wire.UID{})
	require.NoError(t, err)
	s.Close()

	events := rec.snapshot()
	require.NotEmpty(t, events)

	authFrame := events[0]
	require.NotNil(t, authFrame.Frame)
	assert.True(t, authFrame.Frame.Redacted)
	assert.NotContains(t, string(authFrame.Frame.Data), "topsecret")
	assert.Equal(t, "a", authFrame.User)

	var sawCount bool
	for _, e := range events {
		assert.Equal(t, s.ID(), e.ConnectionID)
		if e.Message != nil && e.Message.Type == log.MessageTypeResponse && e.Message.Count != nil {
			assert.Equal(t, 1, *e.Message.Count)
			sawCount = true
		}
	}
	assert.True(t, sawCount, "no CheckUID response event")

	last := events[len(events)-1]
	require.NotNil(t, last.ControlMsg)
	assert.Equal(t, log.ControlMsgClose, last.ControlMsg.Type)
}

func TestTrustHelpers(t *testing.T) {
	assert.True(t, IsInsecure(TrustFromFlag(true)))
	assert.False(t, IsInsecure(TrustFromFlag(false)))
	assert.ErrorIs(t, SystemRoots().VerifyPeer("x", nil), ErrNoCertificate)
	assert.NoError(t, Insecure().VerifyPeer("x", nil))

	cfg := NewTLSConfig(nil, "boop.example")
	assert.Equal(t, "boop.example", cfg.ServerName)
	assert.ErrorIs(t, cfg.VerifyPeerCertificate(nil, nil), ErrNoCertificate)
}

func TestConnectPinnedFingerprint(t *testing.T) {
	peer := newMockPeer(t, true, func(conn net.Conn) { io.Copy(io.Discard, conn) })

	pinned, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.Trust = Pinned(peer.id.Fingerprint())
	})
	s, err := pinned.Connect(context.Background(), scenarioCreds)
	require.NoError(t, err)
	s.Close()

	other, err := cert.GenerateSelfSigned([]string{"localhost"}, time.Hour)
	require.NoError(t, err)
	wrong, _ := testConnector(peer, func(c *ConnectorConfig) {
		c.Trust = Pinned(other.Fingerprint())
	})
	_, err = wrong.Connect(context.Background(), scenarioCreds)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestPinnedVerifier(t *testing.T) {
	id, err := cert.GenerateSelfSigned([]string{"localhost"}, time.Hour)
	require.NoError(t, err)
	raw := [][]byte{id.Certificate.Raw}

	fp := id.Fingerprint()
	var colons []string
	for i := 0; i < len(fp); i += 2 {
		colons = append(colons, strings.ToUpper(fp[i:i+2]))
	}

	assert.NoError(t, Pinned(fp).VerifyPeer("anything", raw))
	assert.NoError(t, Pinned(strings.Join(colons, ":")).VerifyPeer("anything", raw))
	assert.ErrorIs(t, Pinned(fp).VerifyPeer("x", nil), ErrNoCertificate)
	assert.ErrorIs(t, Pinned(strings.Repeat("0", 64)).VerifyPeer("x", raw), ErrFingerprintMismatch)
}
