package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/sensiblebit/efirma/internal/api"
)

var (
	serveListen  string
	serveTLSCert string
	serveTLSKey  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the e.firma HTTP API",
	Long: `Serve POST /api/cert-preview, /api/efirma, /api/pkcs12 and
/api/pkcs12/decode, plus GET /health.`,
	Example: `  efirma serve --listen :8080
  PORT=3000 EFIRMA_EXPORT_PASSWORD=changeit efirma serve --log-format json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default from config: :8080)")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file; serves HTTPS with --tls-key")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	registerCompletion(serveCmd, completionInput{"tls-cert", fileCompletion})
	registerCompletion(serveCmd, completionInput{"tls-key", fileCompletion})
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveTLSCert == "") != (serveTLSKey == "") {
		return errors.New("--tls-cert and --tls-key must be used together")
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	defer memguard.Purge()

	a := api.New(*cfg)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// The enclave holds its own copy.
	cfg.ExportPassword = ""

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if serveTLSCert != "" {
			err = server.ListenAndServeTLS(serveTLSCert, serveTLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	slog.Info("listening", "addr", cfg.Listen, "tls", serveTLSCert != "", "format", cfg.Format())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}
