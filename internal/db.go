//go:build !js

package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "modernc.org/sqlite"

	"github.com/sensiblebit/efirma"
)

// CertificateRecord is one catalogued certificate.
type CertificateRecord struct {
	FingerprintSHA256 string         `db:"fingerprint_sha256"`
	SerialNumber      string         `db:"serial_number"`
	SerialDecimal     string         `db:"serial_decimal"`
	RFC               sql.NullString `db:"rfc"`
	CommonName        sql.NullString `db:"common_name"`
	Subject           string         `db:"subject"`
	Issuer            string         `db:"issuer"`
	NotBefore         time.Time      `db:"not_before"`
	NotAfter          time.Time      `db:"not_after"`
	KeyBits           int            `db:"key_bits"`
	Source            string         `db:"source"`
	MetadataJSON      types.JSONText `db:"metadata"`
}

// CatalogEntry is a CertificateRecord as printed by scan.
type CatalogEntry struct {
	RFC               string               `json:"rfc,omitempty" yaml:"rfc,omitempty"`
	CommonName        string               `json:"commonName,omitempty" yaml:"commonName,omitempty"`
	SerialNumber      string               `json:"serialNumber" yaml:"serialNumber"`
	SerialDecimal     string               `json:"serialNumberDecimal" yaml:"serialNumberDecimal"`
	NotBefore         time.Time            `json:"notBefore" yaml:"notBefore"`
	NotAfter          time.Time            `json:"notAfter" yaml:"notAfter"`
	Validity          efirma.ValidityState `json:"validity" yaml:"validity"`
	KeyBits           int                  `json:"keyBits" yaml:"keyBits"`
	FingerprintSHA256 string               `json:"fingerprintSHA256" yaml:"fingerprintSHA256"`
	Source            string               `json:"source" yaml:"source"`
}

// Entry converts r for output, classifying its validity as of now.
func (r CertificateRecord) Entry(now time.Time) CatalogEntry {
	return CatalogEntry{
		RFC:               r.RFC.String,
		CommonName:        r.CommonName.String,
		SerialNumber:      r.SerialNumber,
		SerialDecimal:     r.SerialDecimal,
		NotBefore:         r.NotBefore,
		NotAfter:          r.NotAfter,
		Validity:          efirma.CheckValidity(r.NotBefore, r.NotAfter, now),
		KeyBits:           r.KeyBits,
		FingerprintSHA256: r.FingerprintSHA256,
		Source:            r.Source,
	}
}

// DB is the in-memory certificate catalog built by scan.
type DB struct {
	*sqlx.DB
}

// NewDB creates and initializes a new in-memory database connection.
// Use SaveToDisk/LoadFromDisk to persist or restore data.
func NewDB() (*DB, error) {
	// Each :memory: connection is a separate database, so the pool is pinned
	// to one connection. PRAGMAs in the DSN apply to reconnections.
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	dbObj := &DB{DB: db}
	if err := dbObj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Debug("database initialized")
	return dbObj, nil
}

func (db *DB) initSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS certificates (
			fingerprint_sha256 text PRIMARY KEY,
			serial_number      text NOT NULL,
			serial_decimal     text NOT NULL,
			rfc                text,
			common_name        text,
			subject            text NOT NULL,
			issuer             text NOT NULL,
			not_before         timestamp NOT NULL,
			not_after          timestamp NOT NULL,
			key_bits           integer NOT NULL,
			source             text NOT NULL,
			metadata           text
		);
	`)
	if err != nil {
		return fmt.Errorf("creating certificates table: %w", err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS idx_certificates_rfc ON certificates(rfc)")
	if err != nil {
		return fmt.Errorf("creating rfc index: %w", err)
	}
	return nil
}

// InsertCertificate stores rec. A certificate already catalogued under the
// same fingerprint is left unchanged.
func (db *DB) InsertCertificate(rec CertificateRecord) error {
	_, err := db.NamedExec(`
		INSERT OR IGNORE INTO certificates (
			fingerprint_sha256, serial_number, serial_decimal, rfc, common_name,
			subject, issuer, not_before, not_after, key_bits, source, metadata
		) VALUES (
			:fingerprint_sha256, :serial_number, :serial_decimal, :rfc, :common_name,
			:subject, :issuer, :not_before, :not_after, :key_bits, :source, :metadata
		)`, rec)
	if err != nil {
		return fmt.Errorf("inserting certificate %s: %w", rec.SerialNumber, err)
	}
	return nil
}

// AddCertificate catalogues c as found at source.
func (db *DB) AddCertificate(c *efirma.Certificate, source string) error {
	meta, err := json.Marshal(efirma.DescribeCertificate(c, time.Now()))
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	rec := CertificateRecord{
		FingerprintSHA256: c.FingerprintSHA256,
		SerialNumber:      c.SerialHex,
		SerialDecimal:     c.SerialDecimal,
		Subject:           c.Subject,
		Issuer:            c.Issuer,
		NotBefore:         c.NotBefore.UTC(),
		NotAfter:          c.NotAfter.UTC(),
		KeyBits:           c.PublicKey.Bits,
		Source:            source,
		MetadataJSON:      types.JSONText(meta),
	}
	if rfc := efirma.ResolveIdentifier(c.Subject); rfc.Found() {
		rec.RFC = sql.NullString{String: rfc.Value, Valid: true}
	}
	if cn := c.CommonName(); cn != "" {
		rec.CommonName = sql.NullString{String: cn, Valid: true}
	}
	return db.InsertCertificate(rec)
}

// GetAllCerts returns every catalogued certificate ordered by expiry.
func (db *DB) GetAllCerts() ([]CertificateRecord, error) {
	var certs []CertificateRecord
	err := db.Select(&certs, "SELECT * FROM certificates ORDER BY not_after, serial_number")
	if err != nil {
		return nil, fmt.Errorf("getting all certificates: %w", err)
	}
	return certs, nil
}

// GetCertsByRFC returns the certificates issued to rfc, which is normalized
// first.
func (db *DB) GetCertsByRFC(rfc string) ([]CertificateRecord, error) {
	var certs []CertificateRecord
	err := db.Select(&certs, "SELECT * FROM certificates WHERE rfc = ? ORDER BY not_after", efirma.NormalizeIdentifier(rfc))
	if err != nil {
		return nil, fmt.Errorf("getting certificates by RFC: %w", err)
	}
	return certs, nil
}

// ScanSummary counts the catalogued certificates by validity state.
type ScanSummary struct {
	Certificates int `json:"certificates" yaml:"certificates"`
	Valid        int `json:"valid" yaml:"valid"`
	Expired      int `json:"expired" yaml:"expired"`
	NotYetValid  int `json:"notYetValid" yaml:"notYetValid"`
	WithRFC      int `json:"withRFC" yaml:"withRFC"`
	RFCs         int `json:"rfcs" yaml:"rfcs"`
}

// GetScanSummary summarizes the catalog as of now.
func (db *DB) GetScanSummary(now time.Time) (*ScanSummary, error) {
	certs, err := db.GetAllCerts()
	if err != nil {
		return nil, err
	}
	s := &ScanSummary{Certificates: len(certs)}
	rfcs := make(map[string]struct{})
	for _, c := range certs {
		switch efirma.CheckValidity(c.NotBefore, c.NotAfter, now) {
		case efirma.Valid:
			s.Valid++
		case efirma.Expired:
			s.Expired++
		case efirma.NotYetValid:
			s.NotYetValid++
		}
		if c.RFC.Valid {
			s.WithRFC++
			rfcs[c.RFC.String] = struct{}{}
		}
	}
	s.RFCs = len(rfcs)
	return s, nil
}

// SaveToDisk writes the in-memory database to a file at the given path.
// Uses VACUUM INTO which produces a clean, compact copy in a single operation.
func (db *DB) SaveToDisk(path string) error {
	_, err := db.Exec("VACUUM INTO ?", path)
	if err != nil {
		return fmt.Errorf("saving database to %s: %w", path, err)
	}
	slog.Info("database saved to disk", "path", path)
	return nil
}

// LoadFromDisk loads certificates from an on-disk database into the
// in-memory database. The file is read once and then detached.
func (db *DB) LoadFromDisk(path string) error {
	_, err := db.Exec("ATTACH DATABASE ? AS diskdb", path)
	if err != nil {
		return fmt.Errorf("attaching database %s: %w", path, err)
	}
	defer func() {
		if _, err := db.Exec("DETACH DATABASE diskdb"); err != nil {
			slog.Warn("detaching database", "path", path, "error", err)
		}
	}()

	_, err = db.Exec("INSERT OR IGNORE INTO certificates SELECT * FROM diskdb.certificates")
	if err != nil {
		return fmt.Errorf("loading certificates from %s: %w", path, err)
	}

	slog.Info("database loaded from disk", "path", path)
	return nil
}

// FormatCatalog renders catalogued certificates as text, json, or yaml.
func FormatCatalog(certs []CertificateRecord, summary *ScanSummary, now time.Time, format string) (string, error) {
	entries := make([]CatalogEntry, 0, len(certs))
	for _, c := range certs {
		entries = append(entries, c.Entry(now))
	}
	if format != "text" {
		return marshalOutput(struct {
			Summary      *ScanSummary   `json:"summary" yaml:"summary"`
			Certificates []CatalogEntry `json:"certificates" yaml:"certificates"`
		}{summary, entries}, format)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d certificate(s) for %d RFC(s)\n", summary.Certificates, summary.RFCs)
	if summary.Certificates > 0 {
		fmt.Fprintf(&sb, "  Valid:         %d\n", summary.Valid)
		fmt.Fprintf(&sb, "  Expired:       %d\n", summary.Expired)
		fmt.Fprintf(&sb, "  Not yet valid: %d\n", summary.NotYetValid)
	}
	for _, e := range entries {
		rfc := e.RFC
		if rfc == "" {
			rfc = "-"
		}
		fmt.Fprintf(&sb, "\n%s  %s\n", rfc, e.CommonName)
		fmt.Fprintf(&sb, "  Number:    %s\n", e.SerialDecimal)
		fmt.Fprintf(&sb, "  Not After: %s (%s)\n", e.NotAfter.UTC().Format("2006-01-02"), e.Validity)
		fmt.Fprintf(&sb, "  Source:    %s\n", e.Source)
	}
	return sb.String(), nil
}
