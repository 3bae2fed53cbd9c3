package efirma

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const redacted = "[REDACTED]"

// PrivateKeyMaterial holds an encrypted private key and the passphrase that
// opens it. Neither is ever rendered: String, GoString, LogValue and
// MarshalJSON all print a placeholder. Call Wipe when done.
type PrivateKeyMaterial struct {
	data       []byte
	passphrase []byte
}

// NewPrivateKeyMaterial copies data and passphrase into a new material.
func NewPrivateKeyMaterial(data []byte, passphrase string) *PrivateKeyMaterial {
	return &PrivateKeyMaterial{
		data:       bytes.Clone(data),
		passphrase: []byte(passphrase),
	}
}

// Empty reports whether no key bytes were supplied.
func (m *PrivateKeyMaterial) Empty() bool {
	return m == nil || len(bytes.TrimSpace(m.data)) == 0
}

// HasPassphrase reports whether a non-empty passphrase was supplied.
func (m *PrivateKeyMaterial) HasPassphrase() bool {
	return m != nil && len(m.passphrase) > 0
}

// Wipe zeroes the key bytes and the passphrase.
func (m *PrivateKeyMaterial) Wipe() {
	if m == nil {
		return
	}
	clear(m.data)
	clear(m.passphrase)
}

func (m *PrivateKeyMaterial) String() string   { return "PrivateKeyMaterial(" + redacted + ")" }
func (m *PrivateKeyMaterial) GoString() string { return m.String() }

// LogValue implements slog.LogValuer.
func (m *PrivateKeyMaterial) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON implements json.Marshaler.
func (m *PrivateKeyMaterial) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Key formats reported in KeyInfo.
const (
	FormatEncryptedPKCS8 = "pkcs8-encrypted"
	FormatPKCS8          = "pkcs8"
)

// KeyInfo describes a decrypted private key without exposing it.
type KeyInfo struct {
	Type      string `json:"type" yaml:"type"`
	Bits      int    `json:"size" yaml:"size"`
	Format    string `json:"format" yaml:"format"`
	Encrypted bool   `json:"encrypted" yaml:"encrypted"`
}

// PrivateKey is a decrypted RSA private key. It is only obtainable through
// DecryptPrivateKey and never serialized.
type PrivateKey struct {
	key  *rsa.PrivateKey
	info KeyInfo
}

// Info returns the key description.
func (k *PrivateKey) Info() KeyInfo { return k.info }

// Bits returns the modulus length.
func (k *PrivateKey) Bits() int { return k.info.Bits }

// Public returns the RSA public key.
func (k *PrivateKey) Public() *rsa.PublicKey { return &k.key.PublicKey }

func (k *PrivateKey) String() string   { return "PrivateKey(" + k.info.Type + ")" }
func (k *PrivateKey) GoString() string { return k.String() }

// LogValue implements slog.LogValuer.
func (k *PrivateKey) LogValue() slog.Value {
	return slog.GroupValue(slog.String("type", k.info.Type), slog.Int("bits", k.info.Bits))
}

// DecryptPrivateKey decrypts a PKCS#8 private key given as DER or PEM.
// Envelopes using PBES2 with a supported key derivation function and cipher,
// or pbeWithSHAAnd3-KeyTripleDES-CBC, are opened with the passphrase. An
// envelope that cannot be read, or that uses any other scheme, yields
// ErrMalformedInput. A supported envelope that does not open with the
// passphrase yields ErrWrongPassphrase. An unencrypted PKCS#8 key is accepted
// and the passphrase ignored. Keys other than RSA yield ErrUnsupportedKey.
func DecryptPrivateKey(m *PrivateKeyMaterial) (*PrivateKey, error) {
	if m.Empty() {
		return nil, missingField("private key")
	}

	der, err := privateKeyDER(m.data)
	if err != nil {
		return nil, err
	}

	envelope, err := classifyPKCS8(der)
	if err != nil {
		return nil, err
	}

	var parsed any
	format := FormatPKCS8
	encrypted := envelope != nil
	switch {
	case !encrypted:
		parsed, err = x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing PKCS#8 private key: %w", ErrMalformedInput, err)
		}
	case envelope.scheme.isPKCS12TripleDES():
		format = FormatEncryptedPKCS8
		parsed, err = decryptPKCS12Key(envelope, string(m.passphrase))
		if err != nil {
			slog.Debug("decrypting PKCS#8 envelope", "error", err)
			return nil, fmt.Errorf("decrypting private key: %w", ErrWrongPassphrase)
		}
	default:
		format = FormatEncryptedPKCS8
		parsed, err = pkcs8.ParsePKCS8PrivateKey(der, m.passphrase)
		if err != nil {
			slog.Debug("decrypting PKCS#8 envelope", "error", err)
			return nil, fmt.Errorf("decrypting private key: %w", ErrWrongPassphrase)
		}
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, parsed)
	}
	return &PrivateKey{
		key: key,
		info: KeyInfo{
			Type:      "rsa",
			Bits:      key.N.BitLen(),
			Format:    format,
			Encrypted: encrypted,
		},
	}, nil
}

// privateKeyDER unwraps a PEM "ENCRYPTED PRIVATE KEY" or "PRIVATE KEY" block
// and passes anything else through as DER.
func privateKeyDER(data []byte) ([]byte, error) {
	if !IsPEM(data) {
		return data, nil
	}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("%w: no PKCS#8 private key block in PEM data", ErrMalformedInput)
		}
		if block.Type == "ENCRYPTED PRIVATE KEY" || block.Type == "PRIVATE KEY" {
			return block.Bytes, nil
		}
	}
}

// encryptedKeyInfo is a parsed EncryptedPrivateKeyInfo.
type encryptedKeyInfo struct {
	scheme pbeScheme
	data   []byte
}

// classifyPKCS8 reads the outer structure of a PKCS#8 blob. It returns nil
// for a plain PrivateKeyInfo and the envelope for an EncryptedPrivateKeyInfo
// whose scheme can be decrypted.
func classifyPKCS8(der []byte) (*encryptedKeyInfo, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: private key is not a DER sequence", ErrMalformedInput)
	}

	// PrivateKeyInfo starts with its version.
	if seq.PeekASN1Tag(cbasn1.INTEGER) {
		return nil, nil
	}

	scheme, err := readPBEScheme(&seq)
	if err != nil {
		return nil, fmt.Errorf("%w: EncryptedPrivateKeyInfo: %w", ErrMalformedInput, err)
	}
	var envelope encryptedKeyInfo
	envelope.scheme = scheme
	if !seq.ReadASN1Bytes(&envelope.data, cbasn1.OCTET_STRING) || !seq.Empty() {
		return nil, fmt.Errorf("%w: invalid EncryptedPrivateKeyInfo", ErrMalformedInput)
	}
	if len(envelope.data) == 0 {
		return nil, fmt.Errorf("%w: empty encrypted key data", ErrMalformedInput)
	}

	switch {
	case scheme.oid.Equal(oidPBES2):
		if _, err := checkPBES2Params(scheme.params); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}
	case scheme.isPKCS12TripleDES():
		if _, err := readPKCS12PBEParams(scheme.params); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported key encryption scheme %s", ErrMalformedInput, scheme.oid)
	}
	return &envelope, nil
}

// decryptPKCS12Key opens an envelope encrypted with a PKCS#12 triple DES
// scheme and parses the PrivateKeyInfo inside.
func decryptPKCS12Key(envelope *encryptedKeyInfo, passphrase string) (any, error) {
	plain, err := decryptPKCS12TripleDES(envelope.scheme, passphrase, envelope.data)
	if err != nil {
		return nil, err
	}
	defer clear(plain)
	return x509.ParsePKCS8PrivateKey(plain)
}
