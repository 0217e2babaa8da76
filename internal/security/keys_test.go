package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func ecPEM(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		t.Fatal(err)
	}
	priv := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(priv), string(pub)
}

func TestLoadKeyPair_Inline(t *testing.T) {
	priv, pub := ecPEM(t)
	signer, pk, err := LoadKeyPair(priv, pub, false)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	if KeyAlg(pk) != "ES256" || KeyAlg(signer.Public()) != "ES256" {
		t.Errorf("unexpected algs %q %q", KeyAlg(pk), KeyAlg(signer.Public()))
	}
}

func TestLoadKeyPair_EscapedNewlines(t *testing.T) {
	priv, pub := ecPEM(t)
	escaped := strings.ReplaceAll(priv, "\n", `\n`)
	if _, _, err := LoadKeyPair(escaped, pub, false); err != nil {
		t.Fatalf("LoadKeyPair with escaped newlines: %v", err)
	}
}

func TestLoadKeyPair_FromFile(t *testing.T) {
	priv, pub := ecPEM(t)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	pubPath := filepath.Join(dir, "key.pub")
	if err := os.WriteFile(privPath, []byte(priv), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, []byte(pub), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadKeyPair(privPath, pubPath, false); err != nil {
		t.Fatalf("LoadKeyPair from files: %v", err)
	}
}

func TestLoadKeyPair_Ephemeral(t *testing.T) {
	if _, _, err := LoadKeyPair("", "", false); err != ErrInvalidKey {
		t.Errorf("no keys without ephemeral: want ErrInvalidKey, got %v", err)
	}
	signer, pub, err := LoadKeyPair("", "", true)
	if err != nil {
		t.Fatalf("ephemeral: %v", err)
	}
	if signer == nil || KeyAlg(pub) != "ES256" {
		t.Error("ephemeral key pair should be P-256")
	}
}

func TestLoadKeyPair_Mismatch(t *testing.T) {
	priv, _ := ecPEM(t)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rsaPub := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey)})
	if _, _, err := LoadKeyPair(priv, string(rsaPub), false); err != ErrInvalidKey {
		t.Errorf("mismatched key types: want ErrInvalidKey, got %v", err)
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	for _, in := range []string{"", "-----BEGIN NOTHING-----", "-----BEGIN FOO-----\nAAAA\n-----END FOO-----"} {
		if _, err := ParsePrivateKey(in); err == nil {
			t.Errorf("ParsePrivateKey(%q) should fail", in)
		}
	}
}

func TestLoadKeyPair_PublicKeyOfAnotherPair(t *testing.T) {
	priv, _ := ecPEM(t)
	_, otherPub := ecPEM(t)
	if _, _, err := LoadKeyPair(priv, otherPub, false); err != ErrInvalidKey {
		t.Errorf("unrelated public key: want ErrInvalidKey, got %v", err)
	}
}
