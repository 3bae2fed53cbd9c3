package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

var (
	unpackBase64   bool
	unpackFormat   string
	unpackPassword internal.PassphraseSource
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <file>",
	Short: "Open a PKCS#12 or JKS container and describe its content",
	Long:  "Open a container with its password and print the certificate, key and container metadata. Use - to read from stdin.",
	Example: `  efirma unpack juan.pfx --passphrase-env EFIRMA_EXPORT_PASSWORD
  efirma pack juan.cer juan.key -p secret --base64 | efirma unpack - --base64 -p 'y71&G!0O7'`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpack,
}

func init() {
	unpackCmd.Flags().BoolVar(&unpackBase64, "base64", false, "Input is base64 text")
	addPassphraseFlags(unpackCmd.Flags(), &unpackPassword, "container password")
	addOutputFormatFlag(unpackCmd, &unpackFormat)
}

func runUnpack(cmd *cobra.Command, args []string) error {
	data, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading container: %w", err)
	}
	password, err := unpackPassword.Resolve()
	if err != nil {
		return err
	}
	if password == "" {
		password = cfg.ExportPassword
	}

	var res *efirma.UnpackResult
	if unpackBase64 {
		res, err = efirma.UnpackBase64(string(data), password)
	} else {
		res, err = efirma.Unpack(efirma.UnpackInput{Container: data, Password: password})
	}
	if err != nil {
		return err
	}

	output, err := internal.FormatMetadata(res.Metadata, unpackFormat)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
