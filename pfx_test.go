package efirma

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"testing"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

type p12ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue
}

type p12Attribute struct {
	ID    asn1.ObjectIdentifier
	Value asn1.RawValue
}

type p12SafeBag struct {
	ID         asn1.ObjectIdentifier
	Value      asn1.RawValue
	Attributes []p12Attribute `asn1:"set,optional"`
}

type p12PFX struct {
	Version  int
	AuthSafe p12ContentInfo
}

// explicitZero wraps DER in a [0] EXPLICIT tag.
func explicitZero(der []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: der}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	der, err := asn1.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

// keyOnlyPFX builds an unencrypted PKCS#12 container, without a MAC, that
// holds a single keyBag carrying friendlyName and localKeyId attributes. It
// opens with the empty password.
func keyOnlyPFX(t *testing.T, key *rsa.PrivateKey, friendlyName string, localKeyID []byte) []byte {
	t.Helper()
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	name, err := bmpPassword(friendlyName)
	if err != nil {
		t.Fatal(err)
	}
	nameDER := mustMarshal(t, asn1.RawValue{Tag: asn1.TagBMPString, Bytes: name[:len(name)-2]})

	bag := p12SafeBag{
		ID:    oidKeyBag,
		Value: explicitZero(keyDER),
		Attributes: []p12Attribute{
			{ID: oidFriendlyNameAttr, Value: asn1.RawValue{Tag: asn1.TagSet, IsCompound: true, Bytes: nameDER}},
			{ID: oidLocalKeyIDAttr, Value: asn1.RawValue{Tag: asn1.TagSet, IsCompound: true, Bytes: mustMarshal(t, localKeyID)}},
		},
	}
	safeContents := mustMarshal(t, []p12SafeBag{bag})
	authSafe := mustMarshal(t, []p12ContentInfo{{
		ContentType: oidDataContentType,
		Content:     explicitZero(mustMarshal(t, safeContents)),
	}})
	return mustMarshal(t, p12PFX{
		Version: 3,
		AuthSafe: p12ContentInfo{
			ContentType: oidDataContentType,
			Content:     explicitZero(mustMarshal(t, authSafe)),
		},
	})
}

// shroudedKeyBagValue returns the EncryptedPrivateKeyInfo DER of the first
// pkcs8ShroudedKeyBag stored in an unencrypted content of a container.
func shroudedKeyBagValue(t *testing.T, pfxDER []byte) []byte {
	t.Helper()
	input := cryptobyte.String(pfxDER)
	var pfx, authSafe, safes, seq cryptobyte.String
	var version int
	if !input.ReadASN1(&pfx, cbasn1.SEQUENCE) ||
		!pfx.ReadASN1Integer(&version) ||
		!pfx.ReadASN1(&authSafe, cbasn1.SEQUENCE) {
		t.Fatal("not a PFX")
	}
	_, content, err := readContentInfo(authSafe)
	if err != nil {
		t.Fatal(err)
	}
	if !content.ReadASN1(&safes, cbasn1.OCTET_STRING) || !safes.ReadASN1(&seq, cbasn1.SEQUENCE) {
		t.Fatal("invalid authenticated safe")
	}
	for !seq.Empty() {
		var ci cryptobyte.String
		if !seq.ReadASN1(&ci, cbasn1.SEQUENCE) {
			t.Fatal("invalid ContentInfo")
		}
		contentType, content, err := readContentInfo(ci)
		if err != nil {
			t.Fatal(err)
		}
		if !contentType.Equal(oidDataContentType) {
			continue
		}
		var safeContents, bags cryptobyte.String
		if !content.ReadASN1(&safeContents, cbasn1.OCTET_STRING) || !safeContents.ReadASN1(&bags, cbasn1.SEQUENCE) {
			t.Fatal("invalid SafeContents")
		}
		for !bags.Empty() {
			var bag, value cryptobyte.String
			var id asn1.ObjectIdentifier
			if !bags.ReadASN1(&bag, cbasn1.SEQUENCE) ||
				!bag.ReadASN1ObjectIdentifier(&id) ||
				!bag.ReadASN1(&value, explicitContextZero) {
				t.Fatal("invalid SafeBag")
			}
			if !id.Equal(oidShroudedKeyBag) {
				continue
			}
			var epki cryptobyte.String
			if !value.ReadASN1Element(&epki, cbasn1.SEQUENCE) {
				t.Fatal("invalid shrouded key bag")
			}
			return epki
		}
	}
	t.Fatal("no shrouded key bag in container")
	return nil
}

func TestInspectPFX(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	packed := packTestCredential(t, cred)

	modern, err := gopkcs12.Modern.Encode(cred.key, cred.cert, nil, testExportPassword)
	if err != nil {
		t.Fatal(err)
	}
	trustStore, err := gopkcs12.LegacyDES.EncodeTrustStore([]*x509.Certificate{cred.cert}, testExportPassword)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name          string
		data          []byte
		password      string
		wantCerts     int
		wantKeys      int
		wantComplete  bool
		wantAlgorithm string
		wantKeyID     string
		wantName      string
	}{
		{
			// WHY: The certificate content is 3DES-encrypted; seeing its bag
			// proves the PKCS#12 KDF agrees with the encoder's.
			name:          "packed 3des container",
			data:          packed.Container,
			password:      testExportPassword,
			wantCerts:     1,
			wantKeys:      1,
			wantComplete:  true,
			wantAlgorithm: AlgorithmTripleDES,
			wantKeyID:     packed.Metadata.Container.LocalKeyID,
		},
		{
			name:          "wrong password leaves certificates sealed",
			data:          packed.Container,
			password:      "nope",
			wantKeys:      1,
			wantAlgorithm: AlgorithmTripleDES,
			wantKeyID:     packed.Metadata.Container.LocalKeyID,
		},
		{
			name:          "modern PBES2 container",
			data:          modern,
			password:      testExportPassword,
			wantKeys:      1,
			wantAlgorithm: "aes-256-cbc",
		},
		{
			name:          "trust store",
			data:          trustStore,
			password:      testExportPassword,
			wantCerts:     1,
			wantComplete:  true,
			wantAlgorithm: AlgorithmTripleDES,
			wantName:      cred.cert.Subject.String(),
		},
		{
			name:         "key only",
			data:         keyOnlyPFX(t, cred.key, "Test Key", []byte{0x01, 0x02, 0xab}),
			wantKeys:     1,
			wantComplete: true,
			wantKeyID:    "0102AB",
			wantName:     "Test Key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inv, err := inspectPFX(tt.data, tt.password)
			if err != nil {
				t.Fatalf("inspectPFX: %v", err)
			}
			if inv.certBags != tt.wantCerts || inv.keyBags != tt.wantKeys {
				t.Errorf("bags = %d cert, %d key; want %d, %d", inv.certBags, inv.keyBags, tt.wantCerts, tt.wantKeys)
			}
			if inv.complete() != tt.wantComplete {
				t.Errorf("complete = %v, want %v (sealed %d)", inv.complete(), tt.wantComplete, inv.sealed)
			}
			if inv.algorithm != tt.wantAlgorithm {
				t.Errorf("algorithm = %q, want %q", inv.algorithm, tt.wantAlgorithm)
			}
			if tt.wantKeyID != "" && inv.attrs.localKeyID != tt.wantKeyID {
				t.Errorf("localKeyID = %q, want %q", inv.attrs.localKeyID, tt.wantKeyID)
			}
			if inv.attrs.friendlyName != tt.wantName {
				t.Errorf("friendlyName = %q, want %q", inv.attrs.friendlyName, tt.wantName)
			}
		})
	}
}

func TestInspectPFX_Malformed(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	packed := packTestCredential(t, cred)

	for name, data := range map[string][]byte{
		"garbage":         []byte("not a container"),
		"certificate DER": cred.certDER,
		"truncated":       packed.Container[:len(packed.Container)/2],
		"wrong version":   mustMarshal(t, p12PFX{Version: 2, AuthSafe: p12ContentInfo{ContentType: oidDataContentType, Content: explicitZero(mustMarshal(t, []byte{}))}}),
	} {
		if _, err := inspectPFX(data, testExportPassword); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
