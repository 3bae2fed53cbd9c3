package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

var (
	validateRFC        string
	validateFormat     string
	validatePassphrase internal.PassphraseSource
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.cer> <file.key>",
	Short: "Validate an e.firma certificate and private key",
	Long: `Check that the certificate is inside its validity window, that the
encrypted private key opens with the passphrase and belongs to the
certificate, and optionally that the certificate carries the given RFC.`,
	Example: `  efirma validate juan.cer juan.key --rfc AAAA800101AAA --passphrase-file pass.txt
  EFIRMA_PASS=secret efirma validate juan.cer juan.key --passphrase-env EFIRMA_PASS --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateRFC, "rfc", "", "RFC the certificate is expected to carry")
	addPassphraseFlags(validateCmd.Flags(), &validatePassphrase, "private key passphrase")
	addOutputFormatFlag(validateCmd, &validateFormat)
	registerCompletion(validateCmd, completionInput{"passphrase-file", fileCompletion})
}

func runValidate(cmd *cobra.Command, args []string) error {
	cer, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	key, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	passphrase, err := validatePassphrase.Resolve()
	if err != nil {
		return err
	}

	report, err := efirma.Validate(efirma.ValidateInput{
		Certificate:     cer,
		PrivateKey:      key,
		Passphrase:      passphrase,
		ClaimedIdentity: validateRFC,
	})
	if err != nil {
		return err
	}

	output, err := internal.FormatValidationResponse(internal.NewValidationResponse(report), validateFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)

	if !report.OK {
		return errors.New("validation failed")
	}
	return nil
}
