package internal

import (
	"crypto/x509/pkix"
	"strings"
	"testing"
	"time"

	"github.com/sensiblebit/efirma"
)

func validate(t *testing.T, cred testCredential, keyDER []byte, claim string) *efirma.ValidationReport {
	t.Helper()
	report, err := efirma.Validate(efirma.ValidateInput{
		Certificate:     cred.certDER,
		PrivateKey:      keyDER,
		Passphrase:      testPassphrase,
		ClaimedIdentity: claim,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return report
}

func TestNewValidationResponse(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t, "AAAA800101AAA")
	resp := NewValidationResponse(validate(t, cred, cred.keyDER, "aaaa-800101-aaa"))

	if !resp.OK || resp.Error != "" || resp.Code != "" {
		t.Fatalf("expected passing response, got %+v", resp)
	}
	if len(resp.Issues) != 0 || len(resp.IssueCodes) != 0 {
		t.Errorf("issues = %v", resp.Issues)
	}
	if resp.Cer.RFC == nil || *resp.Cer.RFC != "AAAA800101AAA" {
		t.Errorf("cer.rfc = %v", resp.Cer.RFC)
	}
	if resp.Cer.NombreORazonSocial != "Juan Perez" {
		t.Errorf("nombreORazonSocial = %q", resp.Cer.NombreORazonSocial)
	}
	if resp.Key.Tipo != "rsa" || resp.Key.Bits != 2048 {
		t.Errorf("key = %+v", resp.Key)
	}
	v := resp.Verificacion
	if v.RFCInput != "AAAA800101AAA" || !v.RFCCoincide || !v.PublicKeyMatchesPrivateKey || v.FirmaPruebaBase64 == "" {
		t.Errorf("verificacion = %+v", v)
	}
	if resp.Validity != string(efirma.Valid) {
		t.Errorf("vigencia = %q", resp.Validity)
	}
}

func TestNewValidationResponse_Failures(t *testing.T) {
	t.Parallel()

	now := time.Now()
	expired := newCredential(t, pkix.Name{CommonName: "Juan Perez", SerialNumber: "AAAA800101AAA"}, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	other := newSATCredential(t, "BBBB800101BBB")

	tests := []struct {
		name      string
		cred      testCredential
		keyDER    []byte
		claim     string
		wantCode  string
		wantCodes []string
	}{
		{
			name:      "expired",
			cred:      expired,
			keyDER:    expired.keyDER,
			claim:     "AAAA800101AAA",
			wantCode:  efirma.CodeExpired,
			wantCodes: []string{efirma.CodeExpired},
		},
		{
			name:      "key mismatch with rfc mismatch",
			cred:      other,
			keyDER:    expired.keyDER,
			claim:     "AAAA800101AAA",
			wantCode:  efirma.CodeKeyMismatch,
			wantCodes: []string{efirma.CodeIdentityMismatch, efirma.CodeKeyMismatch},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := NewValidationResponse(validate(t, tt.cred, tt.keyDER, tt.claim))
			if resp.OK {
				t.Fatal("expected failing response")
			}
			if resp.Code != tt.wantCode || resp.Error == "" {
				t.Errorf("code %q error %q, want code %q", resp.Code, resp.Error, tt.wantCode)
			}
			if strings.Join(resp.IssueCodes, ",") != strings.Join(tt.wantCodes, ",") {
				t.Errorf("issue codes %v, want %v", resp.IssueCodes, tt.wantCodes)
			}
			if len(resp.Issues) != len(resp.IssueCodes) {
				t.Error("issues and codes differ in length")
			}
		})
	}
}

func TestFormatValidationResponse(t *testing.T) {
	t.Parallel()

	cred := newSATCredential(t, "AAAA800101AAA")
	other := newSATCredential(t, "BBBB800101BBB")

	ok, err := FormatValidationResponse(NewValidationResponse(validate(t, cred, cred.keyDER, "")), "text")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Certificate: Juan Perez", "        RFC: AAAA800101AAA", "  RFC Match: NOT CHECKED", "  Key Match: OK (RSA 2048)", "[IDENTITY_NOT_SUPPLIED]", "Validation OK"} {
		if !strings.Contains(ok, want) {
			t.Errorf("output missing %q:\n%s", want, ok)
		}
	}

	failed, err := FormatValidationResponse(NewValidationResponse(validate(t, cred, other.keyDER, "AAAA800101AAA")), "text")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"  RFC Match: OK (AAAA800101AAA)", "  Key Match: MISMATCH", "[KEY_MISMATCH]", "Validation FAILED"} {
		if !strings.Contains(failed, want) {
			t.Errorf("output missing %q:\n%s", want, failed)
		}
	}

	if _, err := FormatValidationResponse(ValidationResponse{}, "json"); err != nil {
		t.Errorf("json: %v", err)
	}
}
