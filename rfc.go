package efirma

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// rfcPattern matches a complete RFC: three letters for legal entities or
	// four for individuals, a YYMMDD date, and a three-character homoclave.
	rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)

	// rfcScanPattern finds an RFC-shaped token anywhere in a subject.
	rfcScanPattern = regexp.MustCompile(`\b[A-Z]{4}\d{6}[A-Z0-9]{2,3}\b`)
)

const (
	rfcLength         = 13
	suffixedRFCLength = 18
)

// Classification values reported in IdentifierResolution.
const (
	ClassificationRFC          = "rfc"
	ClassificationTruncated    = "truncated"
	ClassificationUnclassified = "unclassified"
)

// NormalizeIdentifier uppercases s and removes whitespace, hyphens and
// control characters (U+0000 to U+001F and U+007F to U+009F). The result is in
// NFC so that a decomposed Ñ compares equal to a composed one. Normalizing an
// already normalized value returns it unchanged.
func NormalizeIdentifier(s string) string {
	// Removing a separator can expose a new composition, and composing or
	// case mapping can change the removable set, so repeat until stable.
	for range maxNormalizePasses {
		next := normalizePass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

const maxNormalizePasses = 8

func normalizePass(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) || isControlRune(r) {
			return -1
		}
		return r
	}, s)
	// Casers are not safe for concurrent use.
	upper := cases.Upper(language.Und).String(norm.NFC.String(stripped))
	return norm.NFC.String(upper)
}

func isControlRune(r rune) bool {
	return r <= 0x1F || (r >= 0x7F && r <= 0x9F)
}

// IdentityClaim is the identity a caller asserts for a certificate.
type IdentityClaim struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
}

// NewIdentityClaim records raw and its normalized form.
func NewIdentityClaim(raw string) IdentityClaim {
	return IdentityClaim{Raw: raw, Normalized: NormalizeIdentifier(raw)}
}

// Empty reports whether the claim has no content after normalization.
func (c IdentityClaim) Empty() bool {
	return c.Normalized == ""
}

// Matches reports whether the claim equals an already normalized identifier.
func (c IdentityClaim) Matches(identifier string) bool {
	return !c.Empty() && c.Normalized == identifier
}

// IdentifierExtractor pulls a candidate identifier out of a rendered subject.
// Extract returns "" when its convention is not present.
type IdentifierExtractor struct {
	Name    string
	Extract func(subject string) string
}

func attributeExtractor(name string) IdentifierExtractor {
	return IdentifierExtractor{
		Name: name,
		Extract: func(subject string) string {
			return DNAttribute(subject, name)
		},
	}
}

// DefaultIdentifierExtractors returns the extractors ResolveIdentifier tries,
// in precedence order: the SERIALNUMBER attribute, the same attribute under
// its raw OID, an explicit RFC attribute, x500UniqueIdentifier, and finally a
// scan of the whole subject for an RFC-shaped token. The slice is a fresh
// copy and may be modified by the caller.
func DefaultIdentifierExtractors() []IdentifierExtractor {
	return []IdentifierExtractor{
		attributeExtractor("SERIALNUMBER"),
		attributeExtractor("OID.2.5.4.5"),
		attributeExtractor("RFC"),
		attributeExtractor("x500UniqueIdentifier"),
		{
			Name: "subject-scan",
			Extract: func(subject string) string {
				return rfcScanPattern.FindString(NormalizeSubject(subject))
			},
		},
	}
}

// NormalizeSubject uppercases a subject for pattern scanning. Unlike
// NormalizeIdentifier it keeps separators and spaces so word boundaries
// survive.
func NormalizeSubject(subject string) string {
	return cases.Upper(language.Und).String(subject)
}

// IdentifierResolution is the outcome of resolving an identifier from a
// subject. Value is empty when no extractor produced a candidate.
type IdentifierResolution struct {
	Value          string   `json:"value"`
	Source         string   `json:"source,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Found reports whether an identifier was resolved.
func (r IdentifierResolution) Found() bool {
	return r.Value != ""
}

// ResolveIdentifier resolves the tax identifier in subject using
// DefaultIdentifierExtractors.
func ResolveIdentifier(subject string) IdentifierResolution {
	return ResolveIdentifierWith(subject, DefaultIdentifierExtractors())
}

// ResolveIdentifierWith tries each extractor in order and accepts the first
// candidate that is non-empty after normalization. The accepted value is then
// classified: a complete RFC is kept, an 18-character value whose first 13
// characters form an RFC is cut to that prefix, and anything else is kept
// with a note saying it could not be classified.
func ResolveIdentifierWith(subject string, extractors []IdentifierExtractor) IdentifierResolution {
	for _, ex := range extractors {
		candidate := NormalizeIdentifier(ex.Extract(subject))
		if candidate == "" {
			continue
		}
		res := classifyIdentifier(candidate)
		res.Source = ex.Name
		return res
	}
	return IdentifierResolution{}
}

func classifyIdentifier(candidate string) IdentifierResolution {
	if rfcPattern.MatchString(candidate) {
		return IdentifierResolution{Value: candidate, Classification: ClassificationRFC}
	}
	runes := []rune(candidate)
	if len(runes) == suffixedRFCLength {
		prefix := string(runes[:rfcLength])
		if rfcPattern.MatchString(prefix) {
			return IdentifierResolution{
				Value:          prefix,
				Classification: ClassificationTruncated,
				Notes:          []string{"identifier truncated to its first 13 characters"},
			}
		}
	}
	return IdentifierResolution{
		Value:          candidate,
		Classification: ClassificationUnclassified,
		Notes:          []string{"identifier " + candidate + " could not be confidently classified as an RFC"},
	}
}
