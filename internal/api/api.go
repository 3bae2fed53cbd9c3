// Package api serves the e.firma operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/sensiblebit/efirma"
	"github.com/sensiblebit/efirma/internal"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	exportPassword *memguard.Enclave
	friendlyName   string
	format         efirma.ContainerFormat
	maxUploadBytes int64
	validate       *validator.Validate
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger used for request lines.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithClock fixes the instant validity windows are checked against.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// New creates an API from cfg. The export password is moved into an
// encrypted enclave and only decrypted for the duration of a pack request.
func New(cfg internal.Config, opts ...Option) *API {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	a := &API{
		exportPassword: memguard.NewEnclave([]byte(cfg.ExportPassword)),
		friendlyName:   cfg.FriendlyName,
		format:         cfg.Format(),
		maxUploadBytes: cfg.MaxUploadBytes,
		validate:       v,
		logger:         slog.Default(),
		now:            time.Now,
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = internal.DefaultMaxUploadBytes
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns a chi.Router with the e.firma routes. Mount it under /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/cert-preview", a.CertPreview)
	r.Post("/efirma", a.ValidateEFirma)
	r.Post("/pkcs12", a.PackPKCS12)
	r.Post("/pkcs12/decode", a.DecodePKCS12)

	return r
}

// Handler returns the full server handler: recovery, security headers,
// request logging, GET /health and the API routes under /api.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(a.RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Mount("/api", a.Router())

	return r
}
