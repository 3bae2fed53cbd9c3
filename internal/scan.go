//go:build !js

package internal

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/efirma"
)

// skippableDirs contains directory names that cannot contain certificates
// and are skipped during filesystem walks.
var skippableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".tox":         true,
	".venv":        true,
	"vendor":       true,
}

// IsSkippableDir reports whether the given directory name should be skipped
// during scanning.
func IsSkippableDir(name string) bool {
	return skippableDirs[name]
}

// containerExtensions are opened with the scan passwords.
var containerExtensions = map[string]bool{
	".p12": true,
	".pfx": true,
	".jks": true,
}

// ScanOptions configures ScanPath.
type ScanOptions struct {
	// Passwords are tried in order on PKCS#12 and JKS files.
	Passwords []string
	// MaxFileBytes skips larger files. Zero means DefaultMaxUploadBytes.
	MaxFileBytes int64
}

// ScanResult counts what a scan looked at.
type ScanResult struct {
	Files        int
	Certificates int
	Skipped      int
}

// ScanPath walks root, or reads stdin when root is "-", and catalogues every
// certificate it finds in db. Unreadable or unrecognized files are logged
// and skipped.
func ScanPath(ctx context.Context, root string, db *DB, opts ScanOptions) (*ScanResult, error) {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxUploadBytes
	}
	res := &ScanResult{}

	if root == "-" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, opts.MaxFileBytes))
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		res.Files++
		n, err := ingest(data, "-", db, opts)
		if err != nil {
			return nil, err
		}
		res.Certificates += n
		return res, nil
	}

	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("input path %s: %w", root, err)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && IsSkippableDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		res.Files++

		info, err := d.Info()
		if err != nil {
			slog.Warn("Error processing file", "path", path, "error", err)
			res.Skipped++
			return nil
		}
		if info.Size() > opts.MaxFileBytes {
			slog.Debug("skipping large file", "path", path, "size", info.Size())
			res.Skipped++
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Error processing file", "path", path, "error", err)
			res.Skipped++
			return nil
		}
		n, err := ingest(data, path, db, opts)
		if err != nil {
			return err
		}
		if n == 0 {
			res.Skipped++
		}
		res.Certificates += n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking input path: %w", err)
	}
	return res, nil
}

// ingest catalogues the certificates in data and returns how many it found.
// Only catalog failures are returned as errors.
func ingest(data []byte, source string, db *DB, opts ScanOptions) (int, error) {
	certs, err := efirma.ParseCertificatesAny(data)
	if err != nil {
		certs = openContainer(data, source, opts.Passwords)
	}
	if len(certs) == 0 {
		slog.Debug("no certificates found", "path", source)
		return 0, nil
	}
	for _, c := range certs {
		if err := db.AddCertificate(c, source); err != nil {
			return 0, err
		}
		slog.Info("found certificate", "path", source, "serial", c.SerialHex, "cn", c.CommonName())
	}
	return len(certs), nil
}

// openContainer tries each password on a PKCS#12 or JKS file and returns the
// certificates of the first one that opens it.
func openContainer(data []byte, source string, passwords []string) []*efirma.Certificate {
	if !efirma.IsJKS(data) && !containerExtensions[strings.ToLower(filepath.Ext(source))] {
		return nil
	}
	for _, pw := range passwords {
		res, err := efirma.Unpack(efirma.UnpackInput{Container: data, Password: pw})
		if err != nil {
			slog.Debug("opening container", "path", source, "error", err)
			continue
		}
		return append([]*efirma.Certificate{res.Certificate}, res.CACerts...)
	}
	slog.Warn("could not open container with any password", "path", source)
	return nil
}
