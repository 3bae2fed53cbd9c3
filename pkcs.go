package efirma

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// ContainerFormat selects the container Pack produces.
type ContainerFormat string

const (
	FormatPKCS12 ContainerFormat = "PKCS#12"
	FormatJKS    ContainerFormat = "JKS"
)

// ParseContainerFormat accepts the names used on the command line and in
// requests: "p12", "pfx", "pkcs12" and "jks". Empty means PKCS#12.
func ParseContainerFormat(s string) (ContainerFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "p12", "pfx", "pkcs12", "pkcs#12":
		return FormatPKCS12, nil
	case "jks":
		return FormatJKS, nil
	default:
		return "", fmt.Errorf("%w: unknown container format %q", ErrMalformedInput, s)
	}
}

// AlgorithmTripleDES tags containers whose bags are encrypted with
// pbeWithSHAAnd3-KeyTripleDES-CBC.
const AlgorithmTripleDES = "3des"

// DefaultFriendlyName labels packed credentials when none is configured.
const DefaultFriendlyName = "E.Firma SAT"

// PackInput is the material for Pack. ImportPassphrase only opens the
// uploaded key; the container is always protected with ExportPassword.
type PackInput struct {
	Certificate      []byte
	PrivateKey       []byte
	ImportPassphrase string
	ExportPassword   string
	FriendlyName     string
	Format           ContainerFormat
	Now              time.Time
}

// PackResult is a packed container with its metadata.
type PackResult struct {
	Container []byte
	Base64    string
	Metadata  ContainerMetadata
}

// Pack decrypts the key, proves it belongs to the certificate, and packs the
// pair under the export password. PKCS#12 output uses 3DES for both bags, a
// SHA-1 MAC, and a localKeyId linking the key to the certificate. The
// friendly name is carried in the metadata and, for JKS, as the entry alias.
// A key that does not correspond to the certificate yields ErrKeyMismatch.
func Pack(in PackInput) (*PackResult, error) {
	switch {
	case len(in.Certificate) == 0:
		return nil, missingField("certificate")
	case len(in.PrivateKey) == 0:
		return nil, missingField("private key")
	case in.ImportPassphrase == "":
		return nil, missingField("passphrase")
	case in.ExportPassword == "":
		return nil, missingField("export password")
	}
	if in.Format == "" {
		in.Format = FormatPKCS12
	}
	if in.FriendlyName == "" {
		in.FriendlyName = DefaultFriendlyName
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	cert, err := LoadCertificate(in.Certificate)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}

	material := NewPrivateKeyMaterial(in.PrivateKey, in.ImportPassphrase)
	defer material.Wipe()

	key, probe, err := ProveKeyPair(cert, material)
	if err != nil {
		return nil, fmt.Errorf("verifying private key: %w", err)
	}
	if !probe.Match {
		return nil, ErrKeyMismatch
	}

	var data []byte
	switch in.Format {
	case FormatPKCS12:
		data, err = gopkcs12.LegacyDES.Encode(key.key, cert.X509(), nil, in.ExportPassword)
		if err != nil {
			return nil, fmt.Errorf("encoding PKCS#12: %w", err)
		}
	case FormatJKS:
		data, err = EncodeJKS(key, cert, in.FriendlyName, in.ExportPassword, in.Now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown container format %q", ErrMalformedInput, in.Format)
	}

	b64 := base64.StdEncoding.EncodeToString(data)
	info := key.Info()
	meta := ContainerMetadata{
		Certificate: DescribeCertificate(cert, in.Now),
		PrivateKey:  &info,
		Container: ContainerInfo{
			Format:              string(in.Format),
			FriendlyName:        in.FriendlyName,
			ContainsCertificate: true,
			ContainsPrivateKey:  true,
			Base64Length:        len(b64),
		},
	}
	if in.Format == FormatPKCS12 {
		meta.Container.Algorithm = AlgorithmTripleDES
		if inv, err := inspectPFX(data, in.ExportPassword); err == nil {
			meta.Container.LocalKeyID = inv.attrs.localKeyID
		}
	} else {
		meta.Container.Algorithm = "jks"
	}

	slog.Debug("packed container", "format", in.Format, "serial", cert.SerialHex, "bytes", len(data))
	return &PackResult{Container: data, Base64: b64, Metadata: meta}, nil
}

// UnpackInput is a container and the password protecting it.
type UnpackInput struct {
	Container []byte
	Password  string
	Now       time.Time
}

// UnpackResult is the content of an unpacked container. Key is nil for
// certificate-only containers.
type UnpackResult struct {
	Certificate *Certificate
	CACerts     []*Certificate
	Key         *KeyInfo
	Metadata    ContainerMetadata
}

// UnpackBase64 decodes b64 and unpacks it. Surrounding whitespace and line
// breaks are ignored.
func UnpackBase64(b64, password string) (*UnpackResult, error) {
	cleaned := strings.Join(strings.Fields(b64), "")
	if cleaned == "" {
		return nil, missingField("container")
	}
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64: %w", ErrMalformedInput, err)
	}
	return Unpack(UnpackInput{Container: data, Password: password})
}

// Unpack opens a PKCS#12 container, or a JKS store recognized by its magic
// number, and describes its content. A password that does not open the
// container yields ErrWrongPassphrase and a container without a certificate
// yields ErrNoCertificate.
func Unpack(in UnpackInput) (*UnpackResult, error) {
	if len(in.Container) == 0 {
		return nil, missingField("container")
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	if IsJKS(in.Container) {
		return unpackJKS(in)
	}

	inv, invErr := inspectPFX(in.Container, in.Password)
	if invErr != nil {
		slog.Debug("inspecting PKCS#12 structure", "error", invErr)
	}
	// Only a fully opened container proves the absence of certificates.
	noCertificate := invErr == nil && inv.complete() && inv.certBags == 0

	var keyInfo *KeyInfo
	priv, leaf, caCerts, err := gopkcs12.DecodeChain(in.Container, in.Password)
	switch {
	case err == nil:
		info := describeContainerKey(priv)
		keyInfo = &info
	case errors.Is(err, gopkcs12.ErrIncorrectPassword):
		return nil, fmt.Errorf("decoding PKCS#12: %w", ErrWrongPassphrase)
	case noCertificate:
		return nil, fmt.Errorf("decoding PKCS#12: %w", ErrNoCertificate)
	default:
		certs, fallbackErr := decodeCertificateOnly(in.Container, in.Password)
		if fallbackErr != nil {
			return nil, fmt.Errorf("%w: decoding PKCS#12: %w", ErrMalformedInput, err)
		}
		if len(certs) == 0 {
			return nil, fmt.Errorf("decoding PKCS#12: %w", ErrNoCertificate)
		}
		leaf, caCerts = certs[0], certs[1:]
	}

	res := &UnpackResult{
		Certificate: NewCertificate(leaf),
		Key:         keyInfo,
	}
	for _, ca := range caCerts {
		res.CACerts = append(res.CACerts, NewCertificate(ca))
	}
	res.Metadata = ContainerMetadata{
		Certificate: DescribeCertificate(res.Certificate, in.Now),
		PrivateKey:  keyInfo,
		Container: ContainerInfo{
			Format:              string(FormatPKCS12),
			FriendlyName:        inv.attrs.friendlyName,
			LocalKeyID:          inv.attrs.localKeyID,
			Algorithm:           inv.algorithm,
			ContainsCertificate: true,
			ContainsPrivateKey:  keyInfo != nil,
			Base64Length:        base64.StdEncoding.EncodedLen(len(in.Container)),
		},
	}
	return res, nil
}

// describeContainerKey reports a key found in a container. Containers may
// hold any key type; only the description is kept.
func describeContainerKey(priv any) KeyInfo {
	info := KeyInfo{Format: FormatPKCS8, Encrypted: true}
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		info.Type = "rsa"
		info.Bits = k.N.BitLen()
	case *ecdsa.PrivateKey:
		info.Type = "ec"
		info.Bits = k.Curve.Params().BitSize
	case ed25519.PrivateKey:
		info.Type = "ed25519"
		info.Bits = 256
	default:
		info.Type = fmt.Sprintf("%T", priv)
	}
	return info
}

// decodeCertificateOnly reads containers that hold certificates but no key:
// first as a Java trust store, then through the bag-by-bag PEM conversion.
func decodeCertificateOnly(data []byte, password string) ([]*x509.Certificate, error) {
	if certs, err := gopkcs12.DecodeTrustStore(data, password); err == nil {
		return certs, nil
	}
	blocks, err := gopkcs12.ToPEM(data, password) //nolint:staticcheck // only certificate bags are read
	if err != nil {
		return nil, err
	}
	var certs []*x509.Certificate
	for _, block := range blocks {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate bag: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// DecodePKCS7 decodes a DER-encoded PKCS#7 bundle and returns the certificates it contains.
// Returns an error if decoding fails or the bundle contains no certificates.
func DecodePKCS7(derData []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(derData)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle contains no certificates")
	}
	return p7.Certificates, nil
}

// EncodePKCS7 creates a certs-only PKCS#7 bundle from certificates.
func EncodePKCS7(certs []*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	var derBytes bytes.Buffer
	for _, cert := range certs {
		derBytes.Write(cert.Raw)
	}
	return pkcs7.DegenerateCertificate(derBytes.Bytes())
}
