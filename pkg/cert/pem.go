package cert

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidPEM indicates a missing or mistyped PEM block.
var ErrInvalidPEM = errors.New("invalid PEM data")

const (
	pemTypeCert = "CERTIFICATE"
	pemTypeKey  = "EC PRIVATE KEY"
)

// EncodeCertPEM returns cert as a CERTIFICATE block.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCert, Bytes: cert.Raw})
}

// DecodeCertPEM parses the first block of data as a certificate.
func DecodeCertPEM(data []byte) (*x509.Certificate, error) {
	der, err := decodeBlock(data, pemTypeCert)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

// EncodeKeyPEM returns key as an EC PRIVATE KEY block.
func EncodeKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeKey, Bytes: der}), nil
}

// DecodeKeyPEM parses the first block of data as an ECDSA key.
func DecodeKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	der, err := decodeBlock(data, pemTypeKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseECPrivateKey(der)
}

func decodeBlock(data []byte, blockType string) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrInvalidPEM, block.Type, blockType)
	}
	return block.Bytes, nil
}

// readPEM reads path and hands its contents to decode.
func readPEM[T any](path string, decode func([]byte) (T, error)) (T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(data)
}

func writeCert(path string, cert *x509.Certificate) error {
	return os.WriteFile(path, EncodeCertPEM(cert), 0o644)
}

// writeKey writes the key readable by the owner only.
func writeKey(path string, key *ecdsa.PrivateKey) error {
	data, err := EncodeKeyPEM(key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
