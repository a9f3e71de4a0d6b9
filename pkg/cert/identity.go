package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Identity file names inside a certificate directory.
const (
	CertFileName = "server.crt"
	KeyFileName  = "server.key"
)

// DefaultValidity is how long generated certificates are valid.
const DefaultValidity = 365 * 24 * time.Hour

// ErrKeyMismatch indicates a certificate and key that do not belong together.
var ErrKeyMismatch = errors.New("certificate does not match private key")

// Identity is a server certificate and its private key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateSelfSigned creates a self-signed server identity valid for hosts.
// Entries that parse as IP addresses become IP SANs, the rest DNS SANs.
func GenerateSelfSigned(hosts []string, validity time.Duration) (*Identity, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	cn := "boopbox-server"
	if len(hosts) > 0 {
		cn = hosts[0]
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"boop-box"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &Identity{Certificate: leaf, PrivateKey: key}, nil
}

// TLSCertificate returns the identity for tls.Config.Certificates.
func (id *Identity) TLSCertificate() tls.Certificate {
	if id == nil || id.Certificate == nil || id.PrivateKey == nil {
		return tls.Certificate{}
	}
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// Fingerprint returns the hex SHA-256 of the certificate's DER encoding.
func (id *Identity) Fingerprint() string {
	if id == nil || id.Certificate == nil {
		return ""
	}
	return Fingerprint(id.Certificate.Raw)
}

// Fingerprint returns the hex SHA-256 of a DER-encoded certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// CertPool returns a pool trusting only this certificate.
func (id *Identity) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	if id != nil && id.Certificate != nil {
		pool.AddCert(id.Certificate)
	}
	return pool
}

// Save writes server.crt and server.key into dir.
func (id *Identity) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := writeCert(filepath.Join(dir, CertFileName), id.Certificate); err != nil {
		return err
	}
	return writeKey(filepath.Join(dir, KeyFileName), id.PrivateKey)
}

// Load reads server.crt and server.key from dir.
func Load(dir string) (*Identity, error) {
	c, err := readPEM(filepath.Join(dir, CertFileName), DecodeCertPEM)
	if err != nil {
		return nil, err
	}
	key, err := readPEM(filepath.Join(dir, KeyFileName), DecodeKeyPEM)
	if err != nil {
		return nil, err
	}
	pub, ok := c.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, ErrKeyMismatch
	}
	return &Identity{Certificate: c, PrivateKey: key}, nil
}

// LoadOrGenerate loads the identity in dir, generating and saving a
// self-signed one for hosts if none exists.
func LoadOrGenerate(dir string, hosts []string) (*Identity, bool, error) {
	id, err := Load(dir)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	id, err = GenerateSelfSigned(hosts, DefaultValidity)
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(dir); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
