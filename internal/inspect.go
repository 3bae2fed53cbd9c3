package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/efirma"
)

// Preview is the certificate summary used to prefill the RFC before a full
// validation.
type Preview struct {
	OK               bool      `json:"ok" yaml:"ok"`
	RFC              *string   `json:"rfc" yaml:"rfc"`
	NoCertificado    string    `json:"noCertificado" yaml:"noCertificado"`
	NoCertificadoHex string    `json:"noCertificadoHex" yaml:"noCertificadoHex"`
	ValidoDesde      time.Time `json:"validoDesde" yaml:"validoDesde"`
	ValidoHasta      time.Time `json:"validoHasta" yaml:"validoHasta"`
	Subject          string    `json:"subject" yaml:"subject"`
}

// NewPreview summarizes c. RFC is nil when the subject carries no identifier.
func NewPreview(c *efirma.Certificate) Preview {
	p := Preview{
		OK:               true,
		NoCertificado:    c.SerialDecimal,
		NoCertificadoHex: c.SerialHex,
		ValidoDesde:      c.NotBefore.UTC(),
		ValidoHasta:      c.NotAfter.UTC(),
		Subject:          c.Subject,
	}
	if res := efirma.ResolveIdentifier(c.Subject); res.Found() {
		p.RFC = &res.Value
	}
	return p
}

// FormatPreview renders p as text, json, or yaml.
func FormatPreview(p Preview, format string) (string, error) {
	if format != "text" {
		return marshalOutput(p, format)
	}
	var sb strings.Builder
	rfc := "(not found)"
	if p.RFC != nil {
		rfc = *p.RFC
	}
	sb.WriteString("Certificate:\n")
	fmt.Fprintf(&sb, "  RFC:          %s\n", rfc)
	fmt.Fprintf(&sb, "  Number:       %s\n", p.NoCertificado)
	fmt.Fprintf(&sb, "  Serial (hex): %s\n", p.NoCertificadoHex)
	fmt.Fprintf(&sb, "  Not Before:   %s\n", p.ValidoDesde.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Not After:    %s\n", p.ValidoHasta.Format(time.RFC3339))
	writeDN(&sb, "  Subject:      ", p.Subject)
	return sb.String(), nil
}

// FormatMetadata renders container metadata as text, json, or yaml.
func FormatMetadata(m efirma.ContainerMetadata, format string) (string, error) {
	if format != "text" {
		return marshalOutput(m, format)
	}
	c := m.Certificate
	var sb strings.Builder
	fmt.Fprintf(&sb, "Container:\n")
	fmt.Fprintf(&sb, "  Format:        %s\n", m.Container.Format)
	if m.Container.Algorithm != "" {
		fmt.Fprintf(&sb, "  Algorithm:     %s\n", m.Container.Algorithm)
	}
	if m.Container.FriendlyName != "" {
		fmt.Fprintf(&sb, "  Friendly Name: %s\n", m.Container.FriendlyName)
	}
	if m.Container.LocalKeyID != "" {
		fmt.Fprintf(&sb, "  Local Key ID:  %s\n", m.Container.LocalKeyID)
	}
	fmt.Fprintf(&sb, "  Private Key:   %s\n", describeKeyInfo(m.PrivateKey))
	fmt.Fprintf(&sb, "  Base64 Length: %d\n", m.Container.Base64Length)

	sb.WriteString("\nCertificate:\n")
	if c.RFC != "" {
		fmt.Fprintf(&sb, "  RFC:         %s\n", c.RFC)
	}
	writeDN(&sb, "  Subject:     ", c.Subject.Raw)
	writeDN(&sb, "  Issuer:      ", c.Issuer.Raw)
	fmt.Fprintf(&sb, "  Serial:      %s (%s)\n", c.SerialNumber, c.SerialDecimal)
	fmt.Fprintf(&sb, "  Not Before:  %s\n", c.Validity.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Not After:   %s\n", c.Validity.NotAfter.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Validity:    %s\n", c.Validity.State)
	fmt.Fprintf(&sb, "  Key:         %s %d\n", c.PublicKey.Algorithm, c.PublicKey.Bits)
	fmt.Fprintf(&sb, "  Signature:   %s\n", c.Signature)
	fmt.Fprintf(&sb, "  SHA-256:     %s\n", c.Fingerprints.SHA256)
	fmt.Fprintf(&sb, "  SHA-1:       %s\n", c.Fingerprints.SHA1)
	if len(c.Extensions) > 0 {
		sb.WriteString("  Extensions:\n")
		for _, ext := range c.Extensions {
			critical := ""
			if ext.Critical {
				critical = " (critical)"
			}
			fmt.Fprintf(&sb, "    %s%s: %s\n", ext.Name, critical, ext.Value)
		}
	}
	return sb.String(), nil
}

func describeKeyInfo(k *efirma.KeyInfo) string {
	if k == nil {
		return "none"
	}
	return fmt.Sprintf("%s %d", strings.ToUpper(k.Type), k.Bits)
}

// writeDN writes a newline-separated DN with continuation lines aligned
// under the first.
func writeDN(sb *strings.Builder, label, dn string) {
	indent := strings.Repeat(" ", len(label))
	for i, line := range strings.Split(dn, "\n") {
		if i == 0 {
			sb.WriteString(label)
		} else {
			sb.WriteString(indent)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func marshalOutput(v any, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshaling YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", format)
	}
}
