package efirma

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"maps"
	"testing"
)

func TestParseDN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dn   string
		want map[string]string
	}{
		{
			name: "comma separated",
			dn:   "CN=Test, SERIALNUMBER=AAA010101AAA",
			want: map[string]string{"CN": "Test", "SERIALNUMBER": "AAA010101AAA"},
		},
		{
			name: "slash separated openssl style",
			dn:   "/CN=Test/O=ACME/C=MX",
			want: map[string]string{"CN": "Test", "O": "ACME", "C": "MX"},
		},
		{
			name: "newline separated",
			dn:   "CN=Juan Perez\nx500UniqueIdentifier=PEJJ800101AB1 / PEJJ800101HDFRRN09\nSERIALNUMBER= / PEJJ800101HDFRRN09",
			want: map[string]string{"CN": "Juan Perez", "x500UniqueIdentifier": "PEJJ800101AB1"},
		},
		{
			name: "case insensitive names and aliases",
			dn:   "commonName=Test,serialNumber=X1,E=a@b.mx",
			want: map[string]string{"CN": "Test", "SERIALNUMBER": "X1", "emailAddress": "a@b.mx"},
		},
		{
			name: "oid forms",
			dn:   "OID.2.5.4.5=ABC,2.5.4.45=DEF",
			want: map[string]string{"OID.2.5.4.5": "ABC", "OID.2.5.4.45": "DEF"},
		},
		{
			name: "first occurrence wins",
			dn:   "CN=first, CN=second",
			want: map[string]string{"CN": "first"},
		},
		{
			name: "garbage segments skipped",
			dn:   "no pairs here, =value, CN=Ok",
			want: map[string]string{"CN": "Ok"},
		},
		{
			name: "empty",
			dn:   "",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDN(tt.dn)
			if !maps.Equal(got, tt.want) {
				t.Errorf("ParseDN(%q) = %v, want %v", tt.dn, got, tt.want)
			}
		})
	}
}

func TestCanonicalAttributeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"cn", "CN", true},
		{"SerialNumber", "SERIALNUMBER", true},
		{"oid.2.5.4.5", "OID.2.5.4.5", true},
		{"2.5.4.5", "OID.2.5.4.5", true},
		{"rfc", "RFC", true},
		{"custom-attr", "custom-attr", true},
		{"2..5", "", false},
		{"has space", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalAttributeName(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CanonicalAttributeName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatDN_RoundTripsThroughParseDN(t *testing.T) {
	// WHY: Every subject the loader renders must be readable by ParseDN,
	// including attributes Go has no field for.
	t.Parallel()

	name := pkix.Name{
		Names: []pkix.AttributeTypeAndValue{
			{Type: asn1.ObjectIdentifier{2, 5, 4, 3}, Value: "MARIA LOPEZ"},
			{Type: asn1.ObjectIdentifier{2, 5, 4, 45}, Value: "LOMA800101AB1 / LOMA800101MDFPRR01"},
			{Type: asn1.ObjectIdentifier{1, 2, 3, 4}, Value: "custom"},
		},
	}
	got := FormatDN(name, "\n")
	want := "CN=MARIA LOPEZ\nx500UniqueIdentifier=LOMA800101AB1 / LOMA800101MDFPRR01\nOID.1.2.3.4=custom"
	if got != want {
		t.Fatalf("FormatDN = %q, want %q", got, want)
	}

	fields := ParseDN(got)
	if fields["x500UniqueIdentifier"] != "LOMA800101AB1" {
		t.Errorf("x500UniqueIdentifier = %q", fields["x500UniqueIdentifier"])
	}
	if fields["OID.1.2.3.4"] != "custom" {
		t.Errorf("OID.1.2.3.4 = %q", fields["OID.1.2.3.4"])
	}
}
