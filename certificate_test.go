package efirma

import (
	"crypto/x509"
	"errors"
	"strings"
	"testing"
)

func TestLoadCertificate_Encodings(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	p7, err := EncodePKCS7([]*x509.Certificate{cred.cert})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"DER", cred.certDER},
		{"PEM", cred.certPEM()},
		{"PEM with leading text", append([]byte("Bag Attributes\n"), cred.certPEM()...)},
		{"PKCS#7", p7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := LoadCertificate(tt.data)
			if err != nil {
				t.Fatalf("LoadCertificate: %v", err)
			}
			if c.SerialDecimal != cred.cert.SerialNumber.String() {
				t.Errorf("serial %s, want %s", c.SerialDecimal, cred.cert.SerialNumber)
			}
		})
	}
}

func TestLoadCertificate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrMissingField},
		{"whitespace", []byte(" \n"), ErrMissingField},
		{"garbage", []byte("not a certificate"), ErrMalformedInput},
		{"PEM without certificate", []byte("-----BEGIN FOO-----\nAAAA\n-----END FOO-----\n"), ErrMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadCertificate(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewCertificate_DerivedFields(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	c := NewCertificate(cred.cert)

	if c.Subject != "CN=Test\nSERIALNUMBER=AAAA800101AAA" {
		t.Errorf("Subject = %q", c.Subject)
	}
	if c.CommonName() != "Test" {
		t.Errorf("CommonName = %q", c.CommonName())
	}
	if c.SerialHex != strings.ToUpper(cred.cert.SerialNumber.Text(16)) {
		t.Errorf("SerialHex = %q", c.SerialHex)
	}
	if c.PublicKey.Algorithm != "RSA" || c.PublicKey.Bits != 2048 || c.PublicKey.Exponent != 65537 {
		t.Errorf("PublicKey = %+v", c.PublicKey)
	}
	if len(c.FingerprintSHA256) != 32*3-1 || c.FingerprintSHA256 != strings.ToUpper(c.FingerprintSHA256) {
		t.Errorf("FingerprintSHA256 = %q", c.FingerprintSHA256)
	}
	if len(c.FingerprintSHA1) != 20*3-1 {
		t.Errorf("FingerprintSHA1 = %q", c.FingerprintSHA1)
	}
	if !strings.HasPrefix(c.PEM(), "-----BEGIN CERTIFICATE-----") {
		t.Error("PEM() missing header")
	}
	if c.Base64() == "" {
		t.Error("empty Base64()")
	}
}

func TestColonHex(t *testing.T) {
	t.Parallel()

	if got := ColonHex([]byte{0x0a, 0xbc, 0xff}); got != "0a:bc:ff" {
		t.Errorf("ColonHex = %q", got)
	}
	if got := ColonHex(nil); got != "" {
		t.Errorf("ColonHex(nil) = %q", got)
	}
}
