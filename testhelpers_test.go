package efirma

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/youmark/pkcs8"
)

const testPassphrase = "secret123"

var (
	testKeysOnce sync.Once
	testKeys     [2]*rsa.PrivateKey
	testKeysErr  error
)

// testKey returns one of two RSA-2048 keys shared by every test. Callers must
// not mutate them.
func testKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	testKeysOnce.Do(func() {
		for n := range testKeys {
			testKeys[n], testKeysErr = rsa.GenerateKey(rand.Reader, 2048)
			if testKeysErr != nil {
				return
			}
		}
	})
	if testKeysErr != nil {
		t.Fatal(testKeysErr)
	}
	return testKeys[i]
}

func randomSerial(t *testing.T) *big.Int {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatal(err)
	}
	return serial
}

// testCredential is a self-signed certificate with its key, encrypted under
// testPassphrase the way SAT distributes .key files.
type testCredential struct {
	key     *rsa.PrivateKey
	cert    *x509.Certificate
	certDER []byte
	keyDER  []byte
}

func (c *testCredential) certPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.certDER})
}

func (c *testCredential) keyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: c.keyDER})
}

type credentialOptions struct {
	subject   pkix.Name
	notBefore time.Time
	notAfter  time.Time
	keyIndex  int
}

func newTestCredential(t *testing.T, opts credentialOptions) *testCredential {
	t.Helper()
	if opts.notBefore.IsZero() {
		opts.notBefore = time.Now().Add(-1 * time.Hour)
	}
	if opts.notAfter.IsZero() {
		opts.notAfter = time.Now().Add(24 * time.Hour)
	}
	key := testKey(t, opts.keyIndex)

	template := &x509.Certificate{
		SerialNumber:          randomSerial(t),
		Subject:               opts.subject,
		NotBefore:             opts.notBefore,
		NotAfter:              opts.notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := pkcs8.MarshalPrivateKey(key, []byte(testPassphrase), nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testCredential{key: key, cert: cert, certDER: certDER, keyDER: keyDER}
}

// newSATCredential issues CN=Test, SERIALNUMBER=AAAA800101AAA valid from an
// hour ago until tomorrow.
func newSATCredential(t *testing.T) *testCredential {
	t.Helper()
	return newTestCredential(t, credentialOptions{
		subject: pkix.Name{CommonName: "Test", SerialNumber: "AAAA800101AAA"},
	})
}
