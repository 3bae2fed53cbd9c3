package main

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <file.cer>",
	Short: "Re-encode a certificate as PEM, DER or PKCS#7",
	Long: `Read a certificate in any form preview accepts (DER, PEM, base64 or a
PKCS#7 bundle) and write it as PEM, DER or a certs-only PKCS#7 (.p7b) bundle.`,
	Example: `  efirma export juan.cer
  efirma export juan.cer --format p7b -o juan.p7b`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pem", "Output format: pem, der, p7b")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")

	registerCompletion(exportCmd, completionInput{"format", fixedCompletion("pem", "der", "p7b")})
	registerCompletion(exportCmd, completionInput{"out", fileCompletion})
}

func runExport(cmd *cobra.Command, args []string) error {
	data, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	c, err := efirma.LoadCertificate(data)
	if err != nil {
		return err
	}

	out, binary, err := encodeCertificate(c, exportFormat)
	if err != nil {
		return err
	}
	if exportOut == "" {
		if binary && isTerminalFn(os.Stdout) {
			return errors.New("refusing to write binary output to a terminal; use --out or --format pem")
		}
		_, err := cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(exportOut, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", exportOut, err)
	}
	return nil
}

// encodeCertificate renders c in format and reports whether the result is
// binary.
func encodeCertificate(c *efirma.Certificate, format string) ([]byte, bool, error) {
	switch format {
	case "pem":
		return []byte(c.PEM()), false, nil
	case "der":
		return c.Raw, true, nil
	case "p7b":
		p7, err := efirma.EncodePKCS7([]*x509.Certificate{c.X509()})
		if err != nil {
			return nil, false, fmt.Errorf("encoding PKCS#7: %w", err)
		}
		return p7, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported export format %q (use pem, der, or p7b)", format)
	}
}
