package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

var (
	packType           string
	packOut            string
	packBase64         bool
	packFriendlyName   string
	packExportPassEnv  string
	packImportPassword internal.PassphraseSource
)

var packCmd = &cobra.Command{
	Use:   "pack <file.cer> <file.key>",
	Short: "Package a certificate and private key as PKCS#12 or JKS",
	Long: `Decrypt the private key with its passphrase, check that it belongs to the
certificate, and write a container protected by the export password
(export_password in the config file or EFIRMA_EXPORT_PASSWORD).`,
	Example: `  efirma pack juan.cer juan.key --passphrase-file pass.txt -o juan.pfx
  efirma pack juan.cer juan.key --passphrase-env EFIRMA_PASS --type jks -o juan.jks
  efirma pack juan.cer juan.key --passphrase-file pass.txt --base64`,
	Args: cobra.ExactArgs(2),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packType, "type", "", "Container type: p12, pfx or jks (default from config)")
	packCmd.Flags().StringVarP(&packOut, "out", "o", "", "Output file (default: stdout)")
	packCmd.Flags().BoolVar(&packBase64, "base64", false, "Write the container as base64 text")
	packCmd.Flags().StringVar(&packFriendlyName, "friendly-name", "", "Alias stored in the container (default from config)")
	packCmd.Flags().StringVar(&packExportPassEnv, "export-password-env", "", "Environment variable holding the export password")
	addPassphraseFlags(packCmd.Flags(), &packImportPassword, "private key passphrase")

	registerCompletion(packCmd, completionInput{"type", fixedCompletion("p12", "pfx", "jks")})
	registerCompletion(packCmd, completionInput{"out", fileCompletion})
}

func runPack(cmd *cobra.Command, args []string) error {
	cer, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	key, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	passphrase, err := packImportPassword.Resolve()
	if err != nil {
		return err
	}

	format := cfg.Format()
	if packType != "" {
		if format, err = efirma.ParseContainerFormat(packType); err != nil {
			return err
		}
	}
	exportPassword := cfg.ExportPassword
	if packExportPassEnv != "" {
		v, ok := os.LookupEnv(packExportPassEnv)
		if !ok {
			return fmt.Errorf("environment variable %s is not set", packExportPassEnv)
		}
		exportPassword = v
	}
	friendlyName := cfg.FriendlyName
	if packFriendlyName != "" {
		friendlyName = packFriendlyName
	}

	if packOut == "" && !packBase64 && isTerminalFn(os.Stdout) {
		return errors.New("refusing to write a binary container to a terminal; use --out or --base64")
	}

	res, err := efirma.Pack(efirma.PackInput{
		Certificate:      cer,
		PrivateKey:       key,
		ImportPassphrase: passphrase,
		ExportPassword:   exportPassword,
		FriendlyName:     friendlyName,
		Format:           format,
	})
	if err != nil {
		return err
	}

	out := res.Container
	if packBase64 {
		out = []byte(res.Base64 + "\n")
	}

	if packOut == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(packOut, out, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", packOut, err)
	}

	summary, err := internal.FormatMetadata(res.Metadata, "text")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n\n%s", packOut, summary)
	return nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
