package internal

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/efirma"
)

// Config is the runtime configuration of the CLI and the HTTP server.
type Config struct {
	Listen         string `yaml:"listen" validate:"required"`
	ExportPassword string `yaml:"export_password" validate:"required"`
	FriendlyName   string `yaml:"friendly_name" validate:"required"`
	ContainerType  string `yaml:"container_format" validate:"oneof=p12 pfx pkcs12 jks"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" validate:"gt=0"`
	LogLevel       string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat      string `yaml:"log_format" validate:"oneof=text json"`
}

// DefaultMaxUploadBytes caps each uploaded .cer or .key file.
const DefaultMaxUploadBytes = 5 << 20

// DefaultConfig returns the built-in configuration. The export password is
// the one SAT tooling conventionally uses for generated .pfx files.
func DefaultConfig() Config {
	return Config{
		Listen:         ":8080",
		ExportPassword: "y71&G!0O7",
		FriendlyName:   efirma.DefaultFriendlyName,
		ContainerType:  "p12",
		MaxUploadBytes: DefaultMaxUploadBytes,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig returns the default configuration overlaid with the YAML file
// at path, if any, and then with the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from EFIRMA_EXPORT_PASSWORD, EFIRMA_LISTEN and
// PORT. EFIRMA_LISTEN wins over PORT.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("EFIRMA_EXPORT_PASSWORD"); v != "" {
		c.ExportPassword = v
	}
	if v := getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := getenv("EFIRMA_LISTEN"); v != "" {
		c.Listen = v
	}
}

// Validate checks the configuration and reports offending fields by their
// YAML names.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Format returns the configured container format.
func (c *Config) Format() efirma.ContainerFormat {
	f, err := efirma.ParseContainerFormat(c.ContainerType)
	if err != nil {
		return efirma.FormatPKCS12
	}
	return f
}
