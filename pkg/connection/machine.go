package connection

import (
	"context"

	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Session is a live authenticated stream. *transport.Session implements it.
type Session interface {
	CheckUID(ctx context.Context, uid wire.UID) (wire.CheckUIDResult, error)
	GetAudio(ctx context.Context, id wire.AchievementID) ([]byte, bool, error)
	Keepalive(ctx context.Context) error
	Close() error
}

// Machine is the connection state. It is not safe for concurrent use; the
// networker loop is its only owner.
type Machine struct {
	creds      *config.ConnectionCredentials
	session    Session
	suppressed bool
	status     Status
}

// NewMachine returns a Machine in StatusNoConfig.
func NewMachine() *Machine {
	return &Machine{status: StatusNoConfig}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.status
}

// Credentials returns the current credentials.
func (m *Machine) Credentials() (config.ConnectionCredentials, bool) {
	if m.creds == nil {
		return config.ConnectionCredentials{}, false
	}
	return *m.creds, true
}

// Session returns the live session, or nil.
func (m *Machine) Session() Session {
	return m.session
}

// Suppressed reports whether reconnection is suspended.
func (m *Machine) Suppressed() bool {
	return m.suppressed
}

// Load applies the credentials found at startup (nil if none).
func (m *Machine) Load(creds *config.ConnectionCredentials) Status {
	if creds == nil {
		m.status = StatusNoConfig
		return m.status
	}
	c := *creds
	m.creds = &c
	m.status = StatusDisconnected
	return m.status
}

// SetCredentials replaces the credentials, drops any session and clears
// suppression.
func (m *Machine) SetCredentials(creds config.ConnectionCredentials) Status {
	m.closeSession()
	m.creds = &creds
	m.suppressed = false
	m.status = StatusDisconnected
	return m.status
}

// ShouldAttempt reports whether a connection attempt is due: credentials
// known, no live session, not suppressed.
func (m *Machine) ShouldAttempt() bool {
	return m.creds != nil && m.session == nil && !m.suppressed
}

// Attached installs a freshly authenticated session.
func (m *Machine) Attached(s Session) Status {
	m.closeSession()
	m.session = s
	m.suppressed = false
	m.status = StatusConnected
	return m.status
}

// Rejected records an authentication rejection and suspends reconnection.
func (m *Machine) Rejected() Status {
	m.closeSession()
	m.suppressed = true
	m.status = StatusInvalidCredentials
	return m.status
}

// Drop closes the live session after a failure.
func (m *Machine) Drop() Status {
	m.closeSession()
	if m.creds == nil {
		m.status = StatusNoConfig
	} else if m.suppressed {
		m.status = StatusInvalidCredentials
	} else {
		m.status = StatusDisconnected
	}
	return m.status
}

// Close releases the session without changing status. Used on shutdown.
func (m *Machine) Close() {
	m.closeSession()
}

func (m *Machine) closeSession() {
	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
	}
}
