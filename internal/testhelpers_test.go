package internal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/youmark/pkcs8"

	"github.com/sensiblebit/efirma"
)

const testPassphrase = "secret123"

// testCredential holds a self-signed certificate and its key encrypted under
// testPassphrase.
type testCredential struct {
	cert    *x509.Certificate
	certDER []byte
	keyDER  []byte
}

func (c testCredential) certPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.certDER})
}

// newCredential issues a certificate for subject valid over [notBefore,
// notAfter]. Zero times default to an hour ago and a year from now.
func newCredential(t *testing.T, subject pkix.Name, notBefore, notAfter time.Time) testCredential {
	t.Helper()
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-1 * time.Hour)
	}
	if notAfter.IsZero() {
		notAfter = time.Now().Add(365 * 24 * time.Hour)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	keyDER, err := pkcs8.MarshalPrivateKey(key, []byte(testPassphrase), nil)
	if err != nil {
		t.Fatalf("encrypt key: %v", err)
	}
	return testCredential{cert: cert, certDER: certDER, keyDER: keyDER}
}

func newSATCredential(t *testing.T, rfc string) testCredential {
	t.Helper()
	return newCredential(t, pkix.Name{CommonName: "Juan Perez", SerialNumber: rfc}, time.Time{}, time.Time{})
}

func loadCertificate(t *testing.T, der []byte) *efirma.Certificate {
	t.Helper()
	c, err := efirma.LoadCertificate(der)
	if err != nil {
		t.Fatalf("load certificate: %v", err)
	}
	return c
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
