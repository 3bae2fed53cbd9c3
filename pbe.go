package efirma

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	xunicode "golang.org/x/text/encoding/unicode"
)

var (
	oidPBES2  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidScrypt = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11591, 4, 11}

	oidHMACWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}

	// PKCS#12 password-based encryption, RFC 7292 appendix C.
	oidPBEWithSHAAnd128BitRC4        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 1}
	oidPBEWithSHAAnd40BitRC4         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 2}
	oidPBEWithSHAAnd3KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}
	oidPBEWithSHAAnd2KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 4}
	oidPBEWithSHAAnd128BitRC2CBC     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 5}
	oidPBEWithSHAAnd40BitRC2CBC      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 6}
)

// pbes2Ciphers are the PBES2 encryption schemes the PKCS#8 decrypter
// registers, keyed by OID string.
var pbes2Ciphers = map[string]string{
	"1.2.840.113549.3.7":      "des-ede3-cbc",
	"2.16.840.1.101.3.4.1.2":  "aes-128-cbc",
	"2.16.840.1.101.3.4.1.6":  "aes-128-gcm",
	"2.16.840.1.101.3.4.1.22": "aes-192-cbc",
	"2.16.840.1.101.3.4.1.26": "aes-192-gcm",
	"2.16.840.1.101.3.4.1.42": "aes-256-cbc",
	"2.16.840.1.101.3.4.1.46": "aes-256-gcm",
}

var pkcs12PBENames = map[string]string{
	oidPBEWithSHAAnd128BitRC4.String():        "rc4-128",
	oidPBEWithSHAAnd40BitRC4.String():         "rc4-40",
	oidPBEWithSHAAnd3KeyTripleDESCBC.String(): AlgorithmTripleDES,
	oidPBEWithSHAAnd2KeyTripleDESCBC.String(): "2des",
	oidPBEWithSHAAnd128BitRC2CBC.String():     "rc2-128",
	oidPBEWithSHAAnd40BitRC2CBC.String():      "rc2-40",
}

var errBadPadding = errors.New("invalid block padding")

// pbeScheme is a parsed password-based encryption AlgorithmIdentifier.
type pbeScheme struct {
	oid asn1.ObjectIdentifier
	// params is the raw parameters element, including its tag.
	params cryptobyte.String
}

// readPBEScheme reads an AlgorithmIdentifier SEQUENCE from s.
func readPBEScheme(s *cryptobyte.String) (pbeScheme, error) {
	var seq cryptobyte.String
	var scheme pbeScheme
	if !s.ReadASN1(&seq, cbasn1.SEQUENCE) || !seq.ReadASN1ObjectIdentifier(&scheme.oid) {
		return pbeScheme{}, errors.New("invalid algorithm identifier")
	}
	scheme.params = seq
	return scheme, nil
}

// name returns the short label reported in container metadata: "3des" for
// the PKCS#12 triple DES scheme, the cipher name for PBES2, and the dotted
// OID for anything else.
func (p pbeScheme) name() string {
	if n, ok := pkcs12PBENames[p.oid.String()]; ok {
		return n
	}
	if p.oid.Equal(oidPBES2) {
		if cipherOID, err := checkPBES2Params(p.params); err == nil {
			return pbes2Ciphers[cipherOID.String()]
		}
		return "pbes2"
	}
	return p.oid.String()
}

// checkPBES2Params verifies that a PBES2 parameter block names a key
// derivation function and cipher the PKCS#8 decrypter supports, and returns
// the cipher OID.
func checkPBES2Params(params cryptobyte.String) (asn1.ObjectIdentifier, error) {
	var seq cryptobyte.String
	if !params.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return nil, errors.New("invalid PBES2 parameters")
	}
	kdf, err := readPBEScheme(&seq)
	if err != nil {
		return nil, fmt.Errorf("PBES2 key derivation: %w", err)
	}
	enc, err := readPBEScheme(&seq)
	if err != nil {
		return nil, fmt.Errorf("PBES2 encryption scheme: %w", err)
	}

	switch {
	case kdf.oid.Equal(oidPBKDF2):
		if err := checkPBKDF2Params(kdf.params); err != nil {
			return nil, err
		}
	case kdf.oid.Equal(oidScrypt):
	default:
		return nil, fmt.Errorf("unsupported key derivation function %s", kdf.oid)
	}
	if _, ok := pbes2Ciphers[enc.oid.String()]; !ok {
		return nil, fmt.Errorf("unsupported cipher %s", enc.oid)
	}
	return enc.oid, nil
}

func checkPBKDF2Params(params cryptobyte.String) error {
	var seq, salt cryptobyte.String
	var iterations int64
	if !params.ReadASN1(&seq, cbasn1.SEQUENCE) ||
		!seq.ReadASN1(&salt, cbasn1.OCTET_STRING) ||
		!seq.ReadASN1Integer(&iterations) {
		return errors.New("invalid PBKDF2 parameters")
	}
	if iterations < 1 {
		return fmt.Errorf("invalid PBKDF2 iteration count %d", iterations)
	}
	// The decrypter derives the key length from the cipher.
	if seq.PeekASN1Tag(cbasn1.INTEGER) {
		return errors.New("unsupported PBKDF2 keyLength parameter")
	}
	if seq.Empty() {
		return nil
	}
	prf, err := readPBEScheme(&seq)
	if err != nil {
		return fmt.Errorf("PBKDF2 PRF: %w", err)
	}
	if !prf.oid.Equal(oidHMACWithSHA1) && !prf.oid.Equal(oidHMACWithSHA256) {
		return fmt.Errorf("unsupported PBKDF2 PRF %s", prf.oid)
	}
	return nil
}

// pkcs12PBEParams is pkcs-12PbeParams: a salt and an iteration count.
type pkcs12PBEParams struct {
	salt       []byte
	iterations int
}

// maxPBEIterations bounds the work an untrusted container can demand.
const maxPBEIterations = 10_000_000

func readPKCS12PBEParams(params cryptobyte.String) (pkcs12PBEParams, error) {
	var seq cryptobyte.String
	var p pkcs12PBEParams
	if !params.ReadASN1(&seq, cbasn1.SEQUENCE) ||
		!seq.ReadASN1Bytes(&p.salt, cbasn1.OCTET_STRING) ||
		!seq.ReadASN1Integer(&p.iterations) {
		return pkcs12PBEParams{}, errors.New("invalid PKCS#12 PBE parameters")
	}
	if p.iterations < 1 || p.iterations > maxPBEIterations {
		return pkcs12PBEParams{}, fmt.Errorf("invalid PKCS#12 PBE iteration count %d", p.iterations)
	}
	return p, nil
}

// isPKCS12TripleDES reports whether the scheme is one of the PKCS#12 triple
// DES variants decryptPKCS12TripleDES handles.
func (p pbeScheme) isPKCS12TripleDES() bool {
	return p.oid.Equal(oidPBEWithSHAAnd3KeyTripleDESCBC) || p.oid.Equal(oidPBEWithSHAAnd2KeyTripleDESCBC)
}

// decryptPKCS12TripleDES decrypts data encrypted with
// pbeWithSHAAnd3-KeyTripleDES-CBC or pbeWithSHAAnd2-KeyTripleDES-CBC.
// A padding failure, which is what a wrong password almost always produces,
// returns errBadPadding.
func decryptPKCS12TripleDES(scheme pbeScheme, password string, data []byte) ([]byte, error) {
	params, err := readPKCS12PBEParams(scheme.params)
	if err != nil {
		return nil, err
	}
	bmp, err := bmpPassword(password)
	if err != nil {
		return nil, err
	}
	defer clear(bmp)

	keyLen := 24
	if scheme.oid.Equal(oidPBEWithSHAAnd2KeyTripleDESCBC) {
		keyLen = 16
	}
	key := pkcs12KDF(sha1.New, 64, bmp, params.salt, params.iterations, pkcs12KeyID, keyLen)
	if keyLen == 16 {
		key = append(key, key[:8]...)
	}
	defer clear(key)
	iv := pkcs12KDF(sha1.New, 64, bmp, params.salt, params.iterations, pkcs12IVID, des.BlockSize)

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%des.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpad(out, des.BlockSize)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}

// bmpPassword encodes password as a NUL-terminated big-endian UTF-16
// BMPString. The empty password encodes as the terminator alone.
func bmpPassword(password string) ([]byte, error) {
	enc := xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("encoding password: %w", err)
	}
	return append(b, 0, 0), nil
}

// decodeBMPString decodes a big-endian UTF-16 string such as a friendlyName
// attribute, dropping a trailing NUL terminator.
func decodeBMPString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", errors.New("odd-length BMPString")
	}
	dec := xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewDecoder()
	s, err := dec.Bytes(b)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(s), "\x00"), nil
}

// Diversifiers for pkcs12KDF, RFC 7292 appendix B.3.
const (
	pkcs12KeyID = 1
	pkcs12IVID  = 2
)

// pkcs12KDF derives size bytes of key material from a BMPString password
// per RFC 7292 appendix B.2. v is the hash block size in bytes.
func pkcs12KDF(newHash func() hash.Hash, v int, password, salt []byte, iterations int, id byte, size int) []byte {
	h := newHash()
	u := h.Size()

	d := make([]byte, v)
	for i := range d {
		d[i] = id
	}
	input := append(fillBlocks(salt, v), fillBlocks(password, v)...)

	out := make([]byte, 0, size+u)
	for {
		h.Reset()
		h.Write(d)
		h.Write(input)
		a := h.Sum(nil)
		for range iterations - 1 {
			h.Reset()
			h.Write(a)
			a = h.Sum(a[:0])
		}
		out = append(out, a...)
		if len(out) >= size {
			return out[:size]
		}

		// Each v-byte block of input becomes (block + B + 1) mod 2^(8v),
		// where B is a repeated to v bytes.
		b := fillBlocks(a, v)[:v]
		for j := 0; j < len(input); j += v {
			carry := 1
			for k := v - 1; k >= 0; k-- {
				sum := int(input[j+k]) + int(b[k]) + carry
				input[j+k] = byte(sum)
				carry = sum >> 8
			}
		}
	}
}

// fillBlocks repeats p to the smallest multiple of v bytes that holds it.
// An empty p yields nil.
func fillBlocks(p []byte, v int) []byte {
	if len(p) == 0 {
		return nil
	}
	out := make([]byte, v*((len(p)+v-1)/v))
	for i := range out {
		out[i] = p[i%len(p)]
	}
	return out
}
