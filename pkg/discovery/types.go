package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/boop-box/boopbox-go/pkg/config"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of achievement servers.
	ServiceType = "_boopbox._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port servers listen on unless configured otherwise.
	DefaultPort = 4433

	// ProtocolVersion is the wire protocol version advertised in TXT records.
	ProtocolVersion = 1

	// BrowseTimeout is the default timeout for FindServer.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion     = "v"
	TXTKeyFingerprint = "fp"
	TXTKeyName        = "n"
)

// Errors.
var (
	ErrNotFound        = errors.New("server not found")
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidVersion  = errors.New("invalid protocol version")
	ErrInvalidPort     = errors.New("invalid port")
	ErrNoAddress       = errors.New("service has no usable address")
	ErrInstanceTooLong = errors.New("instance name too long")
	ErrEmptyInstance   = errors.New("instance name is empty")
)

// ServerInfo is what a server advertises.
type ServerInfo struct {
	// Instance is the DNS-SD instance name (required).
	Instance string

	// Port is the TLS port (default DefaultPort).
	Port uint16

	// Name is an optional display name.
	Name string

	// Fingerprint is the optional hex SHA-256 of the server certificate.
	Fingerprint string
}

// Validate checks the advertised fields.
func (i *ServerInfo) Validate() error {
	if i.Instance == "" {
		return ErrEmptyInstance
	}
	if len(i.Instance) > MaxInstanceNameLen {
		return ErrInstanceTooLong
	}
	return nil
}

// ServiceEntry is a resolved DNS-SD entry, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// ServerService is a discovered server.
type ServerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Version      int
	Name         string
	Fingerprint  string
}

// ToServerService converts a resolved entry.
func ToServerService(entry ServiceEntry) (*ServerService, error) {
	info, err := DecodeServerTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil, err
	}
	if entry.Port <= 0 || entry.Port > 65535 {
		return nil, ErrInvalidPort
	}
	return &ServerService{
		InstanceName: entry.Instance,
		Host:         entry.Host,
		Port:         uint16(entry.Port),
		Addresses:    append([]string(nil), entry.Addrs...),
		Version:      info.Version,
		Name:         info.Name,
		Fingerprint:  info.Fingerprint,
	}, nil
}

// Address returns the host to dial: the first IPv4 address, then any
// address, then the mDNS host name.
func (s *ServerService) Address() (string, error) {
	for _, a := range s.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0], nil
	}
	if host := strings.TrimSuffix(s.Host, "."); host != "" {
		return host, nil
	}
	return "", ErrNoAddress
}

// Credentials builds connection credentials for this server.
func (s *ServerService) Credentials(user, secret string) (config.ConnectionCredentials, error) {
	host, err := s.Address()
	if err != nil {
		return config.ConnectionCredentials{}, err
	}
	return config.ConnectionCredentials{
		Host:   host,
		Port:   s.Port,
		User:   user,
		Secret: secret,
	}, nil
}

// String returns "instance (host:port)".
func (s *ServerService) String() string {
	host, err := s.Address()
	if err != nil {
		host = "?"
	}
	return s.InstanceName + " (" + net.JoinHostPort(host, strconv.Itoa(int(s.Port))) + ")"
}
