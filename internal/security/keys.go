package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidKey is returned when key material is missing, malformed or of an unsupported type.
var ErrInvalidKey = errors.New("invalid key")

// LoadKeyPair returns the token signing key and its verification key. Each argument is inline
// PEM or a path to a PEM file. With both empty and allowEphemeral set, a throwaway P-256 key is
// generated so a development server starts without key material.
func LoadKeyPair(privatePEM, publicPEM string, allowEphemeral bool) (crypto.Signer, crypto.PublicKey, error) {
	if strings.TrimSpace(privatePEM) == "" && strings.TrimSpace(publicPEM) == "" {
		if !allowEphemeral {
			return nil, nil, ErrInvalidKey
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		return key, key.Public(), nil
	}
	signer, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("public key: %w", err)
	}
	if !samePublicKey(signer.Public(), pub) {
		return nil, nil, ErrInvalidKey
	}
	return signer, pub, nil
}

// ParsePrivateKey accepts PKCS#1 RSA, SEC 1 EC and PKCS#8 keys.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := readBlock(s)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok || KeyAlg(signer.Public()) == "" {
		return nil, ErrInvalidKey
	}
	return signer, nil
}

// parsePublicKey accepts PKIX and PKCS#1 public keys, and the key of an X.509 certificate.
func parsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := readBlock(s)
	if err != nil {
		return nil, err
	}
	var pub any
	switch block.Type {
	case "PUBLIC KEY":
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		if cert, err = x509.ParseCertificate(block.Bytes); err == nil {
			pub = cert.PublicKey
		}
	default:
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	if KeyAlg(pub) == "" {
		return nil, ErrInvalidKey
	}
	return pub, nil
}

// KeyAlg returns the JWT algorithm for pub: RS256 for RSA, ES256 for ECDSA, empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	}
	return ""
}

func samePublicKey(a, b crypto.PublicKey) bool {
	k, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && k.Equal(b)
}

// readBlock decodes the first PEM block of s. Inline PEM from env files may carry escaped
// newlines; anything not starting with a PEM header is read as a file path.
func readBlock(s string) (*pem.Block, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	var raw []byte
	if strings.HasPrefix(s, "-----BEGIN") {
		raw = []byte(strings.ReplaceAll(s, `\n`, "\n"))
	} else {
		b, err := os.ReadFile(s)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}
