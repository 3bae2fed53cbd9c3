package efirma

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
)

// ProbeMessage is the fixed message signed to prove key correspondence.
const ProbeMessage = "sat-efirma-poc"

// ProbeResult is the outcome of a probe signature.
type ProbeResult struct {
	Match     bool
	Signature []byte
}

// SignatureBase64 returns the probe signature in standard base64.
func (p ProbeResult) SignatureBase64() string {
	return base64.StdEncoding.EncodeToString(p.Signature)
}

// ProbeKeyPair signs ProbeMessage with key using RSASSA-PKCS1-v1_5 over
// SHA-256 and verifies the signature with the certificate's public key. Match
// is true only when that verification succeeds; key material is never
// compared directly. A certificate without an RSA public key yields
// ErrUnsupportedKey.
func ProbeKeyPair(key *PrivateKey, cert *Certificate) (ProbeResult, error) {
	pub, ok := cert.X509().PublicKey.(*rsa.PublicKey)
	if !ok {
		return ProbeResult{}, fmt.Errorf("%w: certificate public key is %s", ErrUnsupportedKey, cert.PublicKey.Algorithm)
	}

	digest := sha256.Sum256([]byte(ProbeMessage))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key.key, crypto.SHA256, digest[:])
	if err != nil {
		return ProbeResult{}, fmt.Errorf("signing probe message: %w", err)
	}

	match := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
	slog.Debug("probed key pair", "match", match, "bits", key.Bits())
	return ProbeResult{Match: match, Signature: sig}, nil
}

// ProveKeyPair decrypts material and probes it against cert.
func ProveKeyPair(cert *Certificate, material *PrivateKeyMaterial) (*PrivateKey, ProbeResult, error) {
	key, err := DecryptPrivateKey(material)
	if err != nil {
		return nil, ProbeResult{}, err
	}
	probe, err := ProbeKeyPair(key, cert)
	if err != nil {
		return nil, ProbeResult{}, err
	}
	return key, probe, nil
}
