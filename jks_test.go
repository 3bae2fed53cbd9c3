package efirma

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

func TestPackUnpack_JKS(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	packed, err := Pack(PackInput{
		Certificate:      cred.certPEM(),
		PrivateKey:       cred.keyPEM(),
		ImportPassphrase: testPassphrase,
		ExportPassword:   testExportPassword,
		FriendlyName:     "E.Firma Juan",
		Format:           FormatJKS,
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !IsJKS(packed.Container) {
		t.Fatal("packed container lacks the JKS magic number")
	}

	res, err := Unpack(UnpackInput{Container: packed.Container, Password: testExportPassword})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	// WHY: Java lowercases aliases by default; the friendly name must survive
	// with its case intact.
	if got := res.Metadata.Container.FriendlyName; got != "E.Firma Juan" {
		t.Errorf("alias = %q", got)
	}
	if res.Metadata.Container.Format != string(FormatJKS) {
		t.Errorf("format = %q", res.Metadata.Container.Format)
	}
	if res.Key == nil || res.Key.Type != "rsa" || res.Key.Bits != 2048 {
		t.Errorf("key %+v", res.Key)
	}
	if !bytes.Equal(res.Certificate.Raw, cred.certDER) {
		t.Error("certificate differs after round trip")
	}
}

func TestUnpack_JKSErrors(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	cert, err := LoadCertificate(cred.certDER)
	if err != nil {
		t.Fatal(err)
	}
	key, err := DecryptPrivateKey(NewPrivateKeyMaterial(cred.keyDER, testPassphrase))
	if err != nil {
		t.Fatal(err)
	}
	data, err := EncodeJKS(key, cert, "efirma", testExportPassword, time.Now())
	if err != nil {
		t.Fatalf("EncodeJKS: %v", err)
	}

	var empty bytes.Buffer
	if err := keystore.New().Store(&empty, []byte(testExportPassword)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		data     []byte
		password string
		wantErr  error
	}{
		{"wrong password", data, "nope", ErrWrongPassphrase},
		{"truncated", data[:len(data)/2], testExportPassword, ErrMalformedInput},
		{"empty store", empty.Bytes(), testExportPassword, ErrNoCertificate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Unpack(UnpackInput{Container: tt.data, Password: tt.password})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnpack_JKSTrustedCertificate(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t)
	ks := keystore.New(keystore.WithCaseExactAliases())
	if err := ks.SetTrustedCertificateEntry("SAT", keystore.TrustedCertificateEntry{
		CreationTime: time.Now(),
		Certificate:  keystore.Certificate{Type: "X.509", Content: cred.certDER},
	}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(testExportPassword)); err != nil {
		t.Fatal(err)
	}

	res, err := Unpack(UnpackInput{Container: buf.Bytes(), Password: testExportPassword})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if res.Key != nil || res.Metadata.Container.ContainsPrivateKey {
		t.Error("trusted certificate entry reported a key")
	}
	if res.Metadata.Container.FriendlyName != "SAT" {
		t.Errorf("alias = %q", res.Metadata.Container.FriendlyName)
	}
}
