package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

var previewFormat string

var previewCmd = &cobra.Command{
	Use:   "preview <file.cer>",
	Short: "Show the RFC, serial and validity of a certificate",
	Example: `  efirma preview juan.cer
  efirma preview juan.cer --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	addOutputFormatFlag(previewCmd, &previewFormat)
}

func runPreview(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	c, err := efirma.LoadCertificate(data)
	if err != nil {
		return err
	}

	output, err := internal.FormatPreview(internal.NewPreview(c), previewFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
