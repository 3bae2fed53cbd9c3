package efirma

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func TestDecryptPrivateKey(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)

	plainDER, err := x509.MarshalPKCS8PrivateKey(cred.key)
	if err != nil {
		t.Fatal(err)
	}
	legacyDER := legacyKeyEnvelope(t, cred)
	legacyPEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: legacyDER})

	tests := []struct {
		name          string
		data          []byte
		passphrase    string
		wantEncrypted bool
	}{
		{"encrypted DER", cred.keyDER, testPassphrase, true},
		{"encrypted PEM", cred.keyPEM(), testPassphrase, true},
		{"plain PKCS#8 ignores passphrase", plainDER, "anything", false},
		{"PKCS#12 3DES envelope", legacyDER, testPassphrase, true},
		{"PKCS#12 3DES envelope PEM", legacyPEM, testPassphrase, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key, err := DecryptPrivateKey(NewPrivateKeyMaterial(tt.data, tt.passphrase))
			if err != nil {
				t.Fatalf("DecryptPrivateKey: %v", err)
			}
			info := key.Info()
			if info.Type != "rsa" || info.Bits != 2048 {
				t.Errorf("Info = %+v, want rsa/2048", info)
			}
			if info.Encrypted != tt.wantEncrypted {
				t.Errorf("Encrypted = %v, want %v", info.Encrypted, tt.wantEncrypted)
			}
			if !key.Public().Equal(&cred.key.PublicKey) {
				t.Error("decrypted key differs from the original")
			}
		})
	}
}

func TestDecryptPrivateKey_Errors(t *testing.T) {
	// WHY: Callers tell users either "the file is broken" or "the passphrase
	// is wrong"; the two classes must never be confused.
	t.Parallel()

	cred := newSATCredential(t)

	pbes1NoParams := encryptedKeyInfoDER(t, pkix.AlgorithmIdentifier{Algorithm: oidPBEWithSHAAnd3KeyTripleDESCBC})
	md5DES := encryptedKeyInfoDER(t, pkix.AlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 3}})
	rc2Cipher := encryptedKeyInfoDER(t, pkix.AlgorithmIdentifier{
		Algorithm:  oidPBES2,
		Parameters: asn1.RawValue{FullBytes: pbes2ParamsDER(t, pbkdf2AlgorithmID(t, oidHMACWithSHA256), asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 2})},
	})
	sha512PRF := encryptedKeyInfoDER(t, pkix.AlgorithmIdentifier{
		Algorithm:  oidPBES2,
		Parameters: asn1.RawValue{FullBytes: pbes2ParamsDER(t, pbkdf2AlgorithmID(t, asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}), asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42})},
	})
	legacyDER := legacyKeyEnvelope(t, cred)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	ecDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		data       []byte
		passphrase string
		wantErr    error
	}{
		{"wrong passphrase", cred.keyDER, "not-the-passphrase", ErrWrongPassphrase},
		{"empty passphrase", cred.keyDER, "", ErrWrongPassphrase},
		{"garbage", []byte("definitely not a key"), testPassphrase, ErrMalformedInput},
		{"truncated", cred.keyDER[:len(cred.keyDER)/2], testPassphrase, ErrMalformedInput},
		{"PKCS#12 3DES without parameters", pbes1NoParams, testPassphrase, ErrMalformedInput},
		{"unsupported PBES1 scheme", md5DES, testPassphrase, ErrMalformedInput},
		{"PBES2 with unsupported cipher", rc2Cipher, testPassphrase, ErrMalformedInput},
		{"PBES2 with unsupported PRF", sha512PRF, testPassphrase, ErrMalformedInput},
		{"PKCS#12 3DES wrong passphrase", legacyDER, "not-the-passphrase", ErrWrongPassphrase},
		{"PEM without key block", cred.certPEM(), testPassphrase, ErrMalformedInput},
		{"non RSA key", ecDER, "", ErrUnsupportedKey},
		{"empty", nil, testPassphrase, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecryptPrivateKey(NewPrivateKeyMaterial(tt.data, tt.passphrase))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if errors.Is(tt.wantErr, ErrMalformedInput) && errors.Is(err, ErrWrongPassphrase) {
				t.Fatalf("malformed input reported as wrong passphrase: %v", err)
			}
		})
	}
}

// encryptedKeyInfoDER builds an EncryptedPrivateKeyInfo with the given
// scheme around arbitrary ciphertext.
func encryptedKeyInfoDER(t *testing.T, alg pkix.AlgorithmIdentifier) []byte {
	t.Helper()
	return mustMarshal(t, struct {
		Algorithm pkix.AlgorithmIdentifier
		Data      []byte
	}{alg, []byte{1, 2, 3, 4, 5, 6, 7, 8}})
}

// legacyKeyEnvelope returns cred's key encrypted under testPassphrase with
// pbeWithSHAAnd3-KeyTripleDES-CBC, as lifted from a container written by
// an independent PKCS#12 encoder.
func legacyKeyEnvelope(t *testing.T, cred *testCredential) []byte {
	t.Helper()
	data, err := gopkcs12.LegacyDES.Encode(cred.key, cred.cert, nil, testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	return shroudedKeyBagValue(t, data)
}

func TestPrivateKeyMaterial_Redacted(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	m := NewPrivateKeyMaterial(cred.keyPEM(), testPassphrase)

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	logger.Info("material", "m", m)

	jsonBytes, err := json.Marshal(map[string]any{"m": m})
	if err != nil {
		t.Fatal(err)
	}

	outputs := map[string]string{
		"fmt %v":  fmt.Sprintf("%v", m),
		"fmt %+v": fmt.Sprintf("%+v", m),
		"fmt %#v": fmt.Sprintf("%#v", m),
		"slog":    logBuf.String(),
		"json":    string(jsonBytes),
	}
	for name, out := range outputs {
		if strings.Contains(out, testPassphrase) || strings.Contains(out, "ENCRYPTED PRIVATE KEY") {
			t.Errorf("%s leaked secret material: %s", name, out)
		}
		if !strings.Contains(out, redacted) {
			t.Errorf("%s missing redaction marker: %s", name, out)
		}
	}
}

func TestPrivateKeyMaterial_Wipe(t *testing.T) {
	t.Parallel()

	m := NewPrivateKeyMaterial([]byte("key bytes"), "passphrase")
	m.Wipe()
	for _, buf := range [][]byte{m.data, m.passphrase} {
		for _, b := range buf {
			if b != 0 {
				t.Fatal("Wipe left non-zero bytes")
			}
		}
	}

	var nilMaterial *PrivateKeyMaterial
	nilMaterial.Wipe()
}
