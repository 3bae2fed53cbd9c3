package efirma

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

var jksMagic = []byte{0xFE, 0xED, 0xFE, 0xED}

// IsJKS reports whether data starts with the Java KeyStore magic number.
func IsJKS(data []byte) bool {
	return bytes.HasPrefix(data, jksMagic)
}

// EncodeJKS creates a Java KeyStore with one private key entry holding key
// and cert under alias. The same password protects the store and the entry
// (standard Java convention). The alias keeps its case.
func EncodeJKS(key *PrivateKey, cert *Certificate, alias, password string, created time.Time) ([]byte, error) {
	pkcs8Key, err := x509.MarshalPKCS8PrivateKey(key.key)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
	}
	defer clear(pkcs8Key)

	ks := keystore.New(keystore.WithCaseExactAliases())
	if err := ks.SetPrivateKeyEntry(alias, keystore.PrivateKeyEntry{
		CreationTime: created,
		PrivateKey:   pkcs8Key,
		CertificateChain: []keystore.Certificate{
			{Type: "X.509", Content: cert.Raw},
		},
	}, []byte(password)); err != nil {
		return nil, fmt.Errorf("setting JKS private key entry: %w", err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}

// unpackJKS reads the first entry of a Java KeyStore. A private key entry
// reports its chain and key; a trusted certificate entry reports just the
// certificate. The alias is reported as the friendly name.
func unpackJKS(in UnpackInput) (*UnpackResult, error) {
	ks := keystore.New(keystore.WithCaseExactAliases(), keystore.WithOrderedAliases())
	if err := ks.Load(bytes.NewReader(in.Container), []byte(in.Password)); err != nil {
		// keystore-go reports a failed integrity check as an invalid digest.
		if strings.Contains(err.Error(), "digest") {
			return nil, fmt.Errorf("loading JKS: %w", ErrWrongPassphrase)
		}
		return nil, fmt.Errorf("%w: loading JKS: %w", ErrMalformedInput, err)
	}

	for _, alias := range ks.Aliases() {
		var (
			chain   []keystore.Certificate
			keyInfo *KeyInfo
		)
		switch {
		case ks.IsPrivateKeyEntry(alias):
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(in.Password))
			if err != nil {
				return nil, fmt.Errorf("reading JKS entry %q: %w", alias, ErrWrongPassphrase)
			}
			priv, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
			clear(entry.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing JKS private key: %w", ErrMalformedInput, err)
			}
			info := describeContainerKey(priv)
			info.Format = "jks"
			keyInfo = &info
			chain = entry.CertificateChain
		case ks.IsTrustedCertificateEntry(alias):
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			chain = []keystore.Certificate{entry.Certificate}
		}
		if len(chain) == 0 {
			continue
		}

		certs := make([]*Certificate, 0, len(chain))
		for _, c := range chain {
			parsed, err := x509.ParseCertificate(c.Content)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing JKS certificate: %w", ErrMalformedInput, err)
			}
			certs = append(certs, NewCertificate(parsed))
		}

		res := &UnpackResult{Certificate: certs[0], CACerts: certs[1:], Key: keyInfo}
		res.Metadata = ContainerMetadata{
			Certificate: DescribeCertificate(res.Certificate, in.Now),
			PrivateKey:  keyInfo,
			Container: ContainerInfo{
				Format:              string(FormatJKS),
				Algorithm:           "jks",
				FriendlyName:        alias,
				ContainsCertificate: true,
				ContainsPrivateKey:  keyInfo != nil,
				Base64Length:        base64.StdEncoding.EncodedLen(len(in.Container)),
			},
		}
		return res, nil
	}
	return nil, fmt.Errorf("loading JKS: %w", ErrNoCertificate)
}
