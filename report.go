package efirma

import (
	"fmt"
	"log/slog"
	"time"
)

// Severity grades a validation issue. Only fatal issues make a report fail.
type Severity string

const (
	SeverityFatal    Severity = "fatal"
	SeverityAdvisory Severity = "advisory"
)

// Issue codes carried by ValidationIssue, in addition to CodeNotYetValid,
// CodeExpired and CodeKeyMismatch.
const (
	CodeIdentityNotSupplied    = "IDENTITY_NOT_SUPPLIED"
	CodeIdentityNotFound       = "IDENTITY_NOT_FOUND"
	CodeIdentifierTruncated    = "IDENTIFIER_TRUNCATED"
	CodeIdentifierUnclassified = "IDENTIFIER_UNCLASSIFIED"
	CodeIdentityMismatch       = "IDENTITY_MISMATCH"
)

// ValidationIssue is one finding in a ValidationReport.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// ValidateInput is the raw material submitted for validation.
type ValidateInput struct {
	Certificate     []byte
	PrivateKey      []byte
	Passphrase      string
	ClaimedIdentity string
	// Now is the instant the validity window is checked against. The zero
	// value means time.Now().
	Now time.Time
}

// ValidationReport is the full outcome of Validate. OK is true exactly when
// Issues contains no fatal issue.
type ValidationReport struct {
	OK              bool
	Issues          []ValidationIssue
	Certificate     *Certificate
	Identifier      IdentifierResolution
	Claim           IdentityClaim
	IdentityMatches bool
	Validity        ValidityState
	Key             KeyInfo
	KeyMatches      bool
	ProbeSignature  string
	CheckedAt       time.Time
}

// Messages returns the issue messages in order.
func (r *ValidationReport) Messages() []string {
	msgs := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		msgs = append(msgs, issue.Message)
	}
	return msgs
}

// Err returns nil for a passing report. Otherwise it returns an error for
// the first fatal issue that wraps ErrNotYetValid, ErrExpired or
// ErrKeyMismatch.
func (r *ValidationReport) Err() error {
	for _, issue := range r.Issues {
		if issue.Severity != SeverityFatal {
			continue
		}
		switch issue.Code {
		case CodeNotYetValid:
			return fmt.Errorf("%w: %s", ErrNotYetValid, issue.Message)
		case CodeExpired:
			return fmt.Errorf("%w: %s", ErrExpired, issue.Message)
		case CodeKeyMismatch:
			return fmt.Errorf("%w: %s", ErrKeyMismatch, issue.Message)
		default:
			return fmt.Errorf("validation failed: %s", issue.Message)
		}
	}
	return nil
}

func (r *ValidationReport) add(severity Severity, code, msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: severity, Code: code, Message: msg})
}

// Validate checks a certificate and encrypted key against a claimed identity.
//
// Missing inputs, unparsable certificates or keys, and a passphrase that does
// not open the key are returned as errors and produce no report. Everything
// else is reported as issues, in this order: no identity claimed, validity
// window (fatal), identifier not found in the certificate, identifier
// classification notes, identity mismatch, and key mismatch (fatal). All
// identity findings are advisory.
func Validate(in ValidateInput) (*ValidationReport, error) {
	if len(in.Certificate) == 0 {
		return nil, missingField("certificate")
	}
	if len(in.PrivateKey) == 0 {
		return nil, missingField("private key")
	}
	if in.Passphrase == "" {
		return nil, missingField("passphrase")
	}

	cert, err := LoadCertificate(in.Certificate)
	if err != nil {
		return nil, fmt.Errorf("loading certificate: %w", err)
	}

	material := NewPrivateKeyMaterial(in.PrivateKey, in.Passphrase)
	defer material.Wipe()

	key, probe, err := ProveKeyPair(cert, material)
	if err != nil {
		return nil, fmt.Errorf("verifying private key: %w", err)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	r := &ValidationReport{
		Certificate:    cert,
		Identifier:     ResolveIdentifier(cert.Subject),
		Claim:          NewIdentityClaim(in.ClaimedIdentity),
		Validity:       cert.ValidityAt(now),
		Key:            key.Info(),
		KeyMatches:     probe.Match,
		ProbeSignature: probe.SignatureBase64(),
		CheckedAt:      now,
	}
	r.IdentityMatches = r.Identifier.Found() && r.Claim.Matches(r.Identifier.Value)

	if r.Claim.Empty() {
		r.add(SeverityAdvisory, CodeIdentityNotSupplied, "no RFC was supplied to compare against the certificate")
	}
	switch r.Validity {
	case NotYetValid:
		r.add(SeverityFatal, CodeNotYetValid, validityMessage(r.Validity, cert.NotBefore, cert.NotAfter))
	case Expired:
		r.add(SeverityFatal, CodeExpired, validityMessage(r.Validity, cert.NotBefore, cert.NotAfter))
	}
	if !r.Identifier.Found() {
		r.add(SeverityAdvisory, CodeIdentityNotFound, "no RFC could be found in the certificate subject")
	}
	for _, note := range r.Identifier.Notes {
		code := CodeIdentifierUnclassified
		if r.Identifier.Classification == ClassificationTruncated {
			code = CodeIdentifierTruncated
		}
		r.add(SeverityAdvisory, code, note)
	}
	if !r.Claim.Empty() && r.Identifier.Found() && !r.IdentityMatches {
		r.add(SeverityAdvisory, CodeIdentityMismatch,
			fmt.Sprintf("supplied RFC %s does not match certificate RFC %s", r.Claim.Normalized, r.Identifier.Value))
	}
	if !r.KeyMatches {
		r.add(SeverityFatal, CodeKeyMismatch, "private key does not correspond to the certificate")
	}

	r.OK = true
	for _, issue := range r.Issues {
		if issue.Severity == SeverityFatal {
			r.OK = false
			break
		}
	}

	slog.Debug("validated certificate",
		"serial", cert.SerialHex,
		"rfc", r.Identifier.Value,
		"validity", r.Validity,
		"key_match", r.KeyMatches,
		"issues", len(r.Issues))
	return r, nil
}
