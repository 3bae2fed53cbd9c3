package efirma

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

// dnAttribute describes one distinguished-name attribute: its canonical
// short name, the OID it is encoded under, and the spellings accepted when
// reading a rendered DN back.
type dnAttribute struct {
	name    string
	oid     asn1.ObjectIdentifier
	aliases []string
}

// dnAttributes lists the attributes FormatDN renders by name. RFC has no OID
// of its own; some issuers write it as a literal attribute name.
var dnAttributes = []dnAttribute{
	{name: "CN", oid: asn1.ObjectIdentifier{2, 5, 4, 3}, aliases: []string{"commonName"}},
	{name: "SERIALNUMBER", oid: asn1.ObjectIdentifier{2, 5, 4, 5}, aliases: []string{"serialNumber"}},
	{name: "O", oid: asn1.ObjectIdentifier{2, 5, 4, 10}, aliases: []string{"organizationName"}},
	{name: "OU", oid: asn1.ObjectIdentifier{2, 5, 4, 11}, aliases: []string{"organizationalUnitName"}},
	{name: "C", oid: asn1.ObjectIdentifier{2, 5, 4, 6}, aliases: []string{"countryName"}},
	{name: "ST", oid: asn1.ObjectIdentifier{2, 5, 4, 8}, aliases: []string{"S", "stateOrProvinceName"}},
	{name: "L", oid: asn1.ObjectIdentifier{2, 5, 4, 7}, aliases: []string{"localityName"}},
	{name: "STREET", oid: asn1.ObjectIdentifier{2, 5, 4, 9}, aliases: []string{"streetAddress"}},
	{name: "POSTALCODE", oid: asn1.ObjectIdentifier{2, 5, 4, 17}, aliases: []string{"postalCode"}},
	{name: "emailAddress", oid: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}, aliases: []string{"E", "email"}},
	{name: "x500UniqueIdentifier", oid: asn1.ObjectIdentifier{2, 5, 4, 45}, aliases: []string{"uniqueIdentifier"}},
	{name: "unstructuredName", oid: asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 2}},
	{name: "RFC"},
}

// canonicalNames maps the lowercase form of every short name and alias to the
// canonical name.
var canonicalNames = func() map[string]string {
	m := make(map[string]string)
	for _, a := range dnAttributes {
		m[strings.ToLower(a.name)] = a.name
		for _, alias := range a.aliases {
			m[strings.ToLower(alias)] = a.name
		}
	}
	return m
}()

// shortNameForOID returns the rendered name for an attribute OID, falling back
// to the OID.<dotted> form for attributes not in dnAttributes.
func shortNameForOID(oid asn1.ObjectIdentifier) string {
	for _, a := range dnAttributes {
		if a.oid != nil && a.oid.Equal(oid) {
			return a.name
		}
	}
	return "OID." + oid.String()
}

// CanonicalAttributeName maps an attribute name as it appears in a rendered
// DN to its canonical form. Matching is case-insensitive. Dotted OIDs, with
// or without an "OID." prefix, canonicalize to "OID.<dotted>". The second
// result is false for names that are neither known nor an OID.
func CanonicalAttributeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if c, ok := canonicalNames[strings.ToLower(name)]; ok {
		return c, true
	}
	dotted := name
	if len(dotted) > 4 && strings.EqualFold(dotted[:4], "OID.") {
		dotted = dotted[4:]
	}
	if isDottedOID(dotted) {
		return "OID." + dotted, true
	}
	if isAttributeName(name) {
		return name, true
	}
	return "", false
}

func isDottedOID(s string) bool {
	if s == "" || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	dots := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '.':
			if s[i-1] == '.' {
				return false
			}
			dots++
		case c < '0' || c > '9':
			return false
		}
	}
	return dots > 0
}

// isAttributeName accepts unknown keyword-style names (letters, digits and
// hyphens starting with a letter) so they can still be looked up verbatim.
func isAttributeName(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func isDNSeparator(r rune) bool {
	return r == ',' || r == '/' || r == '\n'
}

// ParseDN reads a rendered distinguished name into a map keyed by canonical
// attribute name. Commas, slashes and newlines all separate attributes, so a
// value ends at the first of them. Segments that are not name=value pairs are
// skipped and the first occurrence of each name wins. ParseDN never fails; it
// returns an empty map when nothing is recognized.
func ParseDN(dn string) map[string]string {
	attrs := make(map[string]string)
	for _, segment := range strings.FieldsFunc(dn, isDNSeparator) {
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		canonical, ok := CanonicalAttributeName(name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, seen := attrs[canonical]; !seen {
			attrs[canonical] = value
		}
	}
	return attrs
}

// DNAttribute returns the first value for name in dn, matching names through
// CanonicalAttributeName. "serialNumber" and "SERIALNUMBER" are the same
// attribute; "2.5.4.5" looks up the OID.2.5.4.5 spelling.
func DNAttribute(dn, name string) string {
	canonical, ok := CanonicalAttributeName(name)
	if !ok {
		return ""
	}
	return ParseDN(dn)[canonical]
}

// FormatDN renders a certificate name in encoding order using the short
// names ParseDN understands, joining attributes with sep. Values that are not
// strings are rendered with fmt.
func FormatDN(name pkix.Name, sep string) string {
	parts := make([]string, 0, len(name.Names))
	for _, atv := range name.Names {
		var value string
		switch v := atv.Value.(type) {
		case string:
			value = v
		case []byte:
			value = string(v)
		default:
			value = fmt.Sprint(v)
		}
		parts = append(parts, shortNameForOID(atv.Type)+"="+value)
	}
	return strings.Join(parts, sep)
}
