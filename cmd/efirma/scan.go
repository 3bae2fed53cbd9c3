package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma/internal"
)

var (
	scanDBPath    string
	scanLoadPath  string
	scanPasswords []string
	scanFormat    string
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Catalog the e.firma certificates under a directory",
	Long: `Walk a file or directory for .cer, PEM, PKCS#7, PKCS#12 and JKS files and
catalog every certificate found by RFC and expiry. Use - to read stdin.
Containers are opened with each --password in turn and the configured
export password.`,
	Example: `  efirma scan ~/sat
  efirma scan ~/sat --db catalog.db --format json
  efirma scan ~/sat --password 'y71&G!0O7' --password other`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDBPath, "db", "d", "", "Save the catalog to this SQLite file")
	scanCmd.Flags().StringVar(&scanLoadPath, "load", "", "Start from a catalog previously saved with --db")
	scanCmd.Flags().StringSliceVar(&scanPasswords, "password", nil, "Password to try on containers (repeatable)")
	addOutputFormatFlag(scanCmd, &scanFormat)
	registerCompletion(scanCmd, completionInput{"db", fileCompletion})
	registerCompletion(scanCmd, completionInput{"load", fileCompletion})
}

func runScan(cmd *cobra.Command, args []string) error {
	db, err := internal.NewDB()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if scanLoadPath != "" {
		if err := db.LoadFromDisk(scanLoadPath); err != nil {
			return err
		}
	}

	passwords := append([]string{}, scanPasswords...)
	passwords = append(passwords, cfg.ExportPassword)

	res, err := internal.ScanPath(cmd.Context(), args[0], db, internal.ScanOptions{
		Passwords:    passwords,
		MaxFileBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}
	slog.Debug("scan complete", "files", res.Files, "certificates", res.Certificates, "skipped", res.Skipped)

	if scanDBPath != "" {
		if err := db.SaveToDisk(scanDBPath); err != nil {
			return err
		}
	}

	now := time.Now()
	summary, err := db.GetScanSummary(now)
	if err != nil {
		return fmt.Errorf("generating summary: %w", err)
	}
	certs, err := db.GetAllCerts()
	if err != nil {
		return err
	}
	output, err := internal.FormatCatalog(certs, summary, now, scanFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
