package internal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sensiblebit/efirma"
)

// CertificateSummary is the certificate section of a ValidationResponse.
type CertificateSummary struct {
	RFC                *string   `json:"rfc" yaml:"rfc"`
	NombreORazonSocial string    `json:"nombreORazonSocial" yaml:"nombreORazonSocial"`
	NoCertificado      string    `json:"noCertificado" yaml:"noCertificado"`
	NoCertificadoHex   string    `json:"noCertificadoHex" yaml:"noCertificadoHex"`
	ValidoDesde        time.Time `json:"validoDesde" yaml:"validoDesde"`
	ValidoHasta        time.Time `json:"validoHasta" yaml:"validoHasta"`
	Issuer             string    `json:"issuer" yaml:"issuer"`
	Subject            string    `json:"subject" yaml:"subject"`
	FingerprintSHA256  string    `json:"fingerprintSHA256" yaml:"fingerprintSHA256"`
	CertificadoBase64  string    `json:"certificadoBase64" yaml:"certificadoBase64"`
}

// KeySummary is the key section of a ValidationResponse.
type KeySummary struct {
	Tipo string `json:"tipo" yaml:"tipo"`
	Bits int    `json:"bits" yaml:"bits"`
}

// Verification holds the identity and key pair checks.
type Verification struct {
	RFCInput                   string `json:"rfcInput" yaml:"rfcInput"`
	RFCCoincide                bool   `json:"rfcCoincide" yaml:"rfcCoincide"`
	PublicKeyMatchesPrivateKey bool   `json:"publicKeyMatchesPrivateKey" yaml:"publicKeyMatchesPrivateKey"`
	FirmaPruebaBase64          string `json:"firmaPruebaBase64" yaml:"firmaPruebaBase64"`
}

// ValidationResponse is a ValidationReport in the shape the web client and
// the CLI's json and yaml output use. Error and Code are set when the report
// failed.
type ValidationResponse struct {
	OK           bool               `json:"ok" yaml:"ok"`
	Issues       []string           `json:"issues" yaml:"issues"`
	IssueCodes   []string           `json:"issueCodes" yaml:"issueCodes"`
	Validity     string             `json:"vigencia" yaml:"vigencia"`
	Cer          CertificateSummary `json:"cer" yaml:"cer"`
	Key          KeySummary         `json:"key" yaml:"key"`
	Verificacion Verification       `json:"verificacion" yaml:"verificacion"`
	Error        string             `json:"error,omitempty" yaml:"error,omitempty"`
	Code         string             `json:"code,omitempty" yaml:"code,omitempty"`
}

// NewValidationResponse converts r.
func NewValidationResponse(r *efirma.ValidationReport) ValidationResponse {
	c := r.Certificate
	resp := ValidationResponse{
		OK:         r.OK,
		Issues:     r.Messages(),
		IssueCodes: make([]string, 0, len(r.Issues)),
		Validity:   string(r.Validity),
		Cer: CertificateSummary{
			NombreORazonSocial: c.CommonName(),
			NoCertificado:      c.SerialDecimal,
			NoCertificadoHex:   c.SerialHex,
			ValidoDesde:        c.NotBefore.UTC(),
			ValidoHasta:        c.NotAfter.UTC(),
			Issuer:             c.Issuer,
			Subject:            c.Subject,
			FingerprintSHA256:  c.FingerprintSHA256,
			CertificadoBase64:  c.Base64(),
		},
		Key: KeySummary{Tipo: r.Key.Type, Bits: r.Key.Bits},
		Verificacion: Verification{
			RFCInput:                   r.Claim.Normalized,
			RFCCoincide:                r.IdentityMatches,
			PublicKeyMatchesPrivateKey: r.KeyMatches,
			FirmaPruebaBase64:          r.ProbeSignature,
		},
	}
	if r.Identifier.Found() {
		rfc := r.Identifier.Value
		resp.Cer.RFC = &rfc
	}
	for _, issue := range r.Issues {
		resp.IssueCodes = append(resp.IssueCodes, issue.Code)
	}
	if err := r.Err(); err != nil {
		resp.Error = err.Error()
		resp.Code = efirma.ErrorCode(err)
	}
	return resp
}

// daysUntil returns the number of days from now until t, rounded down.
func daysUntil(t time.Time) int {
	return int(math.Floor(time.Until(t).Hours() / 24))
}

// FormatValidationResponse renders a validation result as text, json, or
// yaml.
func FormatValidationResponse(r ValidationResponse, format string) (string, error) {
	if format != "text" {
		return marshalOutput(r, format)
	}

	var sb strings.Builder
	rfc := "(not found)"
	if r.Cer.RFC != nil {
		rfc = *r.Cer.RFC
	}
	fmt.Fprintf(&sb, "Certificate: %s\n", r.Cer.NombreORazonSocial)
	fmt.Fprintf(&sb, "        RFC: %s\n", rfc)
	fmt.Fprintf(&sb, "     Number: %s\n", r.Cer.NoCertificado)
	fmt.Fprintf(&sb, " Not Before: %s\n", r.Cer.ValidoDesde.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Not After: %s (%d days)\n", r.Cer.ValidoHasta.Format(time.RFC3339), daysUntil(r.Cer.ValidoHasta))
	fmt.Fprintf(&sb, "   Validity: %s\n", r.Validity)
	fmt.Fprintf(&sb, "    SHA-256: %s\n", r.Cer.FingerprintSHA256)

	switch {
	case r.Verificacion.RFCInput == "":
		sb.WriteString("  RFC Match: NOT CHECKED\n")
	case r.Verificacion.RFCCoincide:
		fmt.Fprintf(&sb, "  RFC Match: OK (%s)\n", r.Verificacion.RFCInput)
	default:
		fmt.Fprintf(&sb, "  RFC Match: MISMATCH (%s)\n", r.Verificacion.RFCInput)
	}
	if r.Verificacion.PublicKeyMatchesPrivateKey {
		fmt.Fprintf(&sb, "  Key Match: OK (%s %d)\n", strings.ToUpper(r.Key.Tipo), r.Key.Bits)
	} else {
		fmt.Fprintf(&sb, "  Key Match: MISMATCH (%s %d)\n", strings.ToUpper(r.Key.Tipo), r.Key.Bits)
	}

	if len(r.Issues) > 0 {
		sb.WriteString("\nIssues:\n")
		for i, msg := range r.Issues {
			code := ""
			if i < len(r.IssueCodes) {
				code = r.IssueCodes[i]
			}
			fmt.Fprintf(&sb, "  - [%s] %s\n", code, msg)
		}
	}

	if r.OK {
		sb.WriteString("\nValidation OK\n")
	} else {
		sb.WriteString("\nValidation FAILED\n")
	}
	return sb.String(), nil
}
