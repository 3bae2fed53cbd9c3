// Package efirma reads SAT e.firma credentials: it resolves the taxpayer
// identifier (RFC) from a certificate subject, proves that an encrypted
// private key belongs to a certificate by signing and verifying a probe
// message, builds validation reports, and packs and unpacks the pair as a
// PKCS#12 container.
package efirma

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA-1 fingerprints are display values, not security decisions
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PublicKeyInfo describes a certificate's public key. The RSA fields are zero
// for other algorithms.
type PublicKeyInfo struct {
	Algorithm  string `json:"algorithm" yaml:"algorithm"`
	Bits       int    `json:"size,omitempty" yaml:"size,omitempty"`
	Exponent   int    `json:"exponent,omitempty" yaml:"exponent,omitempty"`
	ModulusHex string `json:"modulus,omitempty" yaml:"modulus,omitempty"`
}

// Certificate is an immutable view of a parsed X.509 certificate with the
// derived values the validator and the container metadata report.
type Certificate struct {
	Raw                []byte
	Subject            string
	Issuer             string
	SerialHex          string
	SerialDecimal      string
	Version            int
	SignatureAlgorithm string
	NotBefore          time.Time
	NotAfter           time.Time
	PublicKey          PublicKeyInfo
	FingerprintSHA1    string
	FingerprintSHA256  string

	cert *x509.Certificate
}

// LoadCertificate parses a certificate from DER, PEM, or a PKCS#7 bundle.
// Bundles with more than one certificate yield the first.
func LoadCertificate(data []byte) (*Certificate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, missingField("certificate")
	}
	certs, err := ParseCertificatesAny(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	return NewCertificate(certs[0]), nil
}

// NewCertificate derives a Certificate from an already parsed certificate.
func NewCertificate(cert *x509.Certificate) *Certificate {
	sha1Sum := sha1.Sum(cert.Raw) //nolint:gosec // fingerprint
	sha256Sum := sha256.Sum256(cert.Raw)

	c := &Certificate{
		Raw:                bytes.Clone(cert.Raw),
		Subject:            FormatDN(cert.Subject, "\n"),
		Issuer:             FormatDN(cert.Issuer, "\n"),
		SerialHex:          strings.ToUpper(cert.SerialNumber.Text(16)),
		SerialDecimal:      cert.SerialNumber.String(),
		Version:            cert.Version,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		PublicKey:          publicKeyInfo(cert),
		FingerprintSHA1:    strings.ToUpper(ColonHex(sha1Sum[:])),
		FingerprintSHA256:  strings.ToUpper(ColonHex(sha256Sum[:])),
		cert:               cert,
	}
	return c
}

func publicKeyInfo(cert *x509.Certificate) PublicKeyInfo {
	info := PublicKeyInfo{Algorithm: cert.PublicKeyAlgorithm.String()}
	if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
		info.Bits = pub.N.BitLen()
		info.Exponent = pub.E
		info.ModulusHex = strings.ToUpper(pub.N.Text(16))
	}
	return info
}

// X509 returns the underlying parsed certificate.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// Base64 returns the DER encoding in standard base64.
func (c *Certificate) Base64() string {
	return base64.StdEncoding.EncodeToString(c.Raw)
}

// PEM returns the certificate PEM-encoded.
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}))
}

// CommonName returns the subject CN, which for SAT certificates is the
// taxpayer's name or business name.
func (c *Certificate) CommonName() string {
	return c.cert.Subject.CommonName
}

// ValidityAt classifies at against the certificate's validity window.
func (c *Certificate) ValidityAt(at time.Time) ValidityState {
	return CheckValidity(c.NotBefore, c.NotAfter, at)
}

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificatesAny attempts to parse certificates from raw bytes, trying
// DER first (SAT distributes .cer files as DER), then PEM, then PKCS#7.
func ParseCertificatesAny(data []byte) ([]*x509.Certificate, error) {
	cert, derErr := x509.ParseCertificate(data)
	if derErr == nil {
		return []*x509.Certificate{cert}, nil
	}
	certs, pemErr := ParsePEMCertificates(data)
	if pemErr == nil {
		return certs, nil
	}
	certs, p7Err := DecodePKCS7(data)
	if p7Err == nil {
		return certs, nil
	}
	return nil, fmt.Errorf("not DER (%v) or PEM (%v) or PKCS#7 (%v)", derErr, pemErr, p7Err)
}

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}
