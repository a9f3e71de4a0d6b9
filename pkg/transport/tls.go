package transport

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Trust errors.
var (
	// ErrNoCertificate is returned when the server presents no certificate.
	ErrNoCertificate = errors.New("no certificate presented")

	// ErrFingerprintMismatch is returned when a pinned certificate differs.
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
)

// TrustVerifier decides whether a server certificate chain is acceptable.
type TrustVerifier interface {
	// VerifyPeer checks the DER-encoded chain presented by serverName.
	// A nil error accepts the peer.
	VerifyPeer(serverName string, rawCerts [][]byte) error
}

// RootsVerifier verifies the chain and host name against a root pool.
type RootsVerifier struct {
	// Roots is the trusted pool. Nil means the system root store.
	Roots *x509.CertPool
}

// SystemRoots returns a verifier backed by the system root store.
func SystemRoots() TrustVerifier {
	return RootsVerifier{}
}

// VerifyPeer implements TrustVerifier.
func (v RootsVerifier) VerifyPeer(serverName string, rawCerts [][]byte) error {
	if len(rawCerts) == 0 {
		return ErrNoCertificate
	}

	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for _, raw := range rawCerts[1:] {
		c, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		intermediates.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         v.Roots,
		Intermediates: intermediates,
		DNSName:       serverName,
		CurrentTime:   time.Now(),
	}
	if _, err := leaf.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

type insecureVerifier struct{}

func (insecureVerifier) VerifyPeer(string, [][]byte) error { return nil }

// Insecure returns a verifier that accepts any certificate.
// Only for development servers and trusted private networks.
func Insecure() TrustVerifier {
	return insecureVerifier{}
}

// IsInsecure reports whether v accepts every certificate.
func IsInsecure(v TrustVerifier) bool {
	_, ok := v.(insecureVerifier)
	return ok
}

// PinnedVerifier accepts exactly one leaf certificate, identified by the
// hex SHA-256 of its DER encoding. Host names and expiry are not checked.
type PinnedVerifier struct {
	Fingerprint string
}

// Pinned returns a verifier pinned to fingerprint. Colons are ignored.
func Pinned(fingerprint string) TrustVerifier {
	fp := strings.ToLower(strings.ReplaceAll(fingerprint, ":", ""))
	return PinnedVerifier{Fingerprint: fp}
}

// VerifyPeer implements TrustVerifier.
func (v PinnedVerifier) VerifyPeer(_ string, rawCerts [][]byte) error {
	if len(rawCerts) == 0 {
		return ErrNoCertificate
	}
	sum := sha256.Sum256(rawCerts[0])
	got := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(got), []byte(v.Fingerprint)) != 1 {
		return fmt.Errorf("%w: got %s", ErrFingerprintMismatch, got)
	}
	return nil
}

// TrustFromFlag maps the static "insecure" configuration flag to a verifier.
func TrustFromFlag(insecure bool) TrustVerifier {
	if insecure {
		return Insecure()
	}
	return SystemRoots()
}

// NewTLSConfig builds the client TLS configuration for serverName.
// Go's built-in verification is replaced by trust so both policies go
// through the same path.
func NewTLSConfig(trust TrustVerifier, serverName string) *tls.Config {
	if trust == nil {
		trust = SystemRoots()
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,

		// Verification happens in VerifyPeerCertificate.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return trust.VerifyPeer(serverName, rawCerts)
		},
	}
}
