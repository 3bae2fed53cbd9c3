package efirma

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"strings"
	"time"
)

// NameInfo is a distinguished name both as rendered and broken into fields.
type NameInfo struct {
	Raw    string            `json:"raw" yaml:"raw"`
	Fields map[string]string `json:"fields" yaml:"fields"`
}

// ValidityInfo is the validity window and its state at the time the
// metadata was built.
type ValidityInfo struct {
	NotBefore time.Time     `json:"notBefore" yaml:"notBefore"`
	NotAfter  time.Time     `json:"notAfter" yaml:"notAfter"`
	IsValid   bool          `json:"isValid" yaml:"isValid"`
	State     ValidityState `json:"state" yaml:"state"`
}

// ExtensionSummary is a readable rendering of one certificate extension.
type ExtensionSummary struct {
	OID      string `json:"oid" yaml:"oid"`
	Name     string `json:"name" yaml:"name"`
	Critical bool   `json:"critical" yaml:"critical"`
	Value    string `json:"value" yaml:"value"`
}

// Fingerprints holds uppercase colon-separated certificate digests.
type Fingerprints struct {
	SHA1   string `json:"sha1" yaml:"sha1"`
	SHA256 string `json:"sha256" yaml:"sha256"`
}

// CertificateMetadata is the certificate section of ContainerMetadata.
type CertificateMetadata struct {
	Version       int                `json:"version" yaml:"version"`
	SerialNumber  string             `json:"serialNumber" yaml:"serialNumber"`
	SerialDecimal string             `json:"serialNumberDecimal" yaml:"serialNumberDecimal"`
	Signature     string             `json:"signatureAlgorithm" yaml:"signatureAlgorithm"`
	Issuer        NameInfo           `json:"issuer" yaml:"issuer"`
	Subject       NameInfo           `json:"subject" yaml:"subject"`
	Validity      ValidityInfo       `json:"validity" yaml:"validity"`
	PublicKey     PublicKeyInfo      `json:"publicKey" yaml:"publicKey"`
	Extensions    []ExtensionSummary `json:"extensions" yaml:"extensions"`
	Fingerprints  Fingerprints       `json:"fingerprints" yaml:"fingerprints"`
	RFC           string             `json:"rfc,omitempty" yaml:"rfc,omitempty"`
}

// ContainerInfo describes the container itself.
type ContainerInfo struct {
	Format              string `json:"format" yaml:"format"`
	Algorithm           string `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	FriendlyName        string `json:"friendlyName,omitempty" yaml:"friendlyName,omitempty"`
	LocalKeyID          string `json:"localKeyId,omitempty" yaml:"localKeyId,omitempty"`
	ContainsCertificate bool   `json:"containsCertificate" yaml:"containsCertificate"`
	ContainsPrivateKey  bool   `json:"containsPrivateKey" yaml:"containsPrivateKey"`
	Base64Length        int    `json:"base64Length" yaml:"base64Length"`
}

// ContainerMetadata summarizes a packed or unpacked container.
type ContainerMetadata struct {
	Certificate CertificateMetadata `json:"certificate" yaml:"certificate"`
	PrivateKey  *KeyInfo            `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
	Container   ContainerInfo       `json:"pkcs12" yaml:"pkcs12"`
}

// DescribeCertificate builds the certificate section of the metadata as of at.
func DescribeCertificate(c *Certificate, at time.Time) CertificateMetadata {
	state := c.ValidityAt(at)
	return CertificateMetadata{
		Version:       c.Version,
		SerialNumber:  c.SerialHex,
		SerialDecimal: c.SerialDecimal,
		Signature:     c.SignatureAlgorithm,
		Issuer:        NameInfo{Raw: c.Issuer, Fields: ParseDN(c.Issuer)},
		Subject:       NameInfo{Raw: c.Subject, Fields: ParseDN(c.Subject)},
		Validity: ValidityInfo{
			NotBefore: c.NotBefore,
			NotAfter:  c.NotAfter,
			IsValid:   state == Valid,
			State:     state,
		},
		PublicKey:    c.PublicKey,
		Extensions:   describeExtensions(c.X509()),
		Fingerprints: Fingerprints{SHA1: c.FingerprintSHA1, SHA256: c.FingerprintSHA256},
		RFC:          ResolveIdentifier(c.Subject).Value,
	}
}

var (
	oidExtSubjectKeyID     = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidExtKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtSubjectAltName   = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtCRLDistribution  = asn1.ObjectIdentifier{2, 5, 29, 31}
	oidExtCertPolicies     = asn1.ObjectIdentifier{2, 5, 29, 32}
	oidExtAuthorityKeyID   = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidExtExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtAuthorityInfo    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
)

var extensionNames = map[string]string{
	oidExtSubjectKeyID.String():     "subjectKeyIdentifier",
	oidExtKeyUsage.String():         "keyUsage",
	oidExtSubjectAltName.String():   "subjectAltName",
	oidExtBasicConstraints.String(): "basicConstraints",
	oidExtCRLDistribution.String():  "cRLDistributionPoints",
	oidExtCertPolicies.String():     "certificatePolicies",
	oidExtAuthorityKeyID.String():   "authorityKeyIdentifier",
	oidExtExtKeyUsage.String():      "extKeyUsage",
	oidExtAuthorityInfo.String():    "authorityInfoAccess",
}

func describeExtensions(c *x509.Certificate) []ExtensionSummary {
	summaries := make([]ExtensionSummary, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		oid := ext.Id.String()
		name, ok := extensionNames[oid]
		if !ok {
			name = oid
		}
		summaries = append(summaries, ExtensionSummary{
			OID:      oid,
			Name:     name,
			Critical: ext.Critical,
			Value:    extensionValue(c, ext.Id, ext.Value),
		})
	}
	return summaries
}

func extensionValue(c *x509.Certificate, id asn1.ObjectIdentifier, raw []byte) string {
	switch {
	case id.Equal(oidExtKeyUsage):
		return strings.Join(describeKeyUsage(c.KeyUsage), ", ")
	case id.Equal(oidExtExtKeyUsage):
		usages := describeExtKeyUsage(c.ExtKeyUsage)
		for _, u := range c.UnknownExtKeyUsage {
			usages = append(usages, u.String())
		}
		return strings.Join(usages, ", ")
	case id.Equal(oidExtSubjectAltName):
		return strings.Join(collectSANs(c), ", ")
	case id.Equal(oidExtBasicConstraints):
		if c.MaxPathLen >= 0 && (c.MaxPathLen > 0 || c.MaxPathLenZero) {
			return fmt.Sprintf("cA=%t, pathLen=%d", c.IsCA, c.MaxPathLen)
		}
		return fmt.Sprintf("cA=%t", c.IsCA)
	case id.Equal(oidExtSubjectKeyID):
		return strings.ToUpper(ColonHex(c.SubjectKeyId))
	case id.Equal(oidExtAuthorityKeyID):
		return strings.ToUpper(ColonHex(c.AuthorityKeyId))
	case id.Equal(oidExtCRLDistribution):
		return strings.Join(c.CRLDistributionPoints, ", ")
	case id.Equal(oidExtAuthorityInfo):
		return strings.Join(append(append([]string{}, c.OCSPServer...), c.IssuingCertificateURL...), ", ")
	case id.Equal(oidExtCertPolicies):
		policies := make([]string, 0, len(c.Policies))
		for _, p := range c.Policies {
			policies = append(policies, p.String())
		}
		return strings.Join(policies, ", ")
	default:
		return strings.ToUpper(ColonHex(raw))
	}
}

func describeKeyUsage(ku x509.KeyUsage) []string {
	var usages []string
	names := []struct {
		bit  x509.KeyUsage
		name string
	}{
		{x509.KeyUsageDigitalSignature, "Digital Signature"},
		{x509.KeyUsageContentCommitment, "Non Repudiation"},
		{x509.KeyUsageKeyEncipherment, "Key Encipherment"},
		{x509.KeyUsageDataEncipherment, "Data Encipherment"},
		{x509.KeyUsageKeyAgreement, "Key Agreement"},
		{x509.KeyUsageCertSign, "Certificate Sign"},
		{x509.KeyUsageCRLSign, "CRL Sign"},
		{x509.KeyUsageEncipherOnly, "Encipher Only"},
		{x509.KeyUsageDecipherOnly, "Decipher Only"},
	}
	for _, n := range names {
		if ku&n.bit != 0 {
			usages = append(usages, n.name)
		}
	}
	return usages
}

func describeExtKeyUsage(ekus []x509.ExtKeyUsage) []string {
	var usages []string
	names := map[x509.ExtKeyUsage]string{
		x509.ExtKeyUsageAny:             "Any",
		x509.ExtKeyUsageServerAuth:      "Server Auth",
		x509.ExtKeyUsageClientAuth:      "Client Auth",
		x509.ExtKeyUsageCodeSigning:     "Code Signing",
		x509.ExtKeyUsageEmailProtection: "Email Protection",
		x509.ExtKeyUsageTimeStamping:    "Time Stamping",
		x509.ExtKeyUsageOCSPSigning:     "OCSP Signing",
	}
	for _, eku := range ekus {
		if name, ok := names[eku]; ok {
			usages = append(usages, name)
		} else {
			usages = append(usages, fmt.Sprintf("Unknown (%d)", eku))
		}
	}
	return usages
}

func collectSANs(c *x509.Certificate) []string {
	var sans []string
	sans = append(sans, c.DNSNames...)
	for _, ip := range c.IPAddresses {
		sans = append(sans, ip.String())
	}
	sans = append(sans, c.EmailAddresses...)
	for _, uri := range c.URIs {
		sans = append(sans, uri.String())
	}
	return sans
}
