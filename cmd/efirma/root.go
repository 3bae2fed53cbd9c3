package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma/internal"
)

var (
	logLevel   string
	logFormat  string
	configPath string

	// cfg is loaded before any subcommand runs.
	cfg *internal.Config
)

var rootCmd = &cobra.Command{
	Use:               "efirma",
	Short:             "SAT e.firma toolkit",
	Long:              "Inspect and validate SAT e.firma credentials (.cer + .key) and package them as PKCS#12 or JKS containers.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level: debug, info, warn, error (default from config: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from config: text)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"log-format", fixedCompletion("text", "json")})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	c, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if logFormat != "" {
		c.LogFormat = logFormat
	}
	internal.SetupLogger(c.LogLevel, c.LogFormat)
	cfg = c
	return nil
}
