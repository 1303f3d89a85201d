package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/parser"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Anki    AnkiConfig        `yaml:"anki"`
	Vault   VaultConfig       `yaml:"vault"`
	Staging StagingConfig     `yaml:"staging"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Anki.Validate(); err != nil {
		return fmt.Errorf("anki: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Staging.Validate(); err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// AnkiConfig holds the AnkiConnect endpoint settings.
type AnkiConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Validate validates the AnkiConnect configuration.
func (c *AnkiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
	)
}

// Options converts the configuration to client options.
func (c *AnkiConfig) Options() anki.Options {
	return anki.Options{
		URL:        c.URL,
		Timeout:    c.Timeout,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
	}
}

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// VaultConfig holds note discovery settings.
type VaultConfig struct {
	Extension string `yaml:"extension"`
	Workers   int    `yaml:"workers"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extension, validation.Required, validation.Match(extensionRe)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// StagingConfig holds where import files are staged and when stale ones are removed.
type StagingConfig struct {
	Dir    string        `yaml:"dir"` // empty means the OS temp dir
	MaxAge time.Duration `yaml:"max_age"`
}

// Validate validates the staging configuration.
func (c *StagingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxAge, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds the sync history database location.
// An empty path disables history.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the history database is configured.
func (c *SQLiteConfig) Enabled() bool {
	return c.Path != ""
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
		},
		Anki: AnkiConfig{
			URL:        anki.DefaultURL,
			Timeout:    30 * time.Second,
			Retries:    2,
			RetryDelay: 500 * time.Millisecond,
		},
		Vault: VaultConfig{
			Extension: parser.DefaultExtension,
			Workers:   4,
		},
		Staging: StagingConfig{
			MaxAge: 24 * time.Hour,
		},
		SQLite: SQLiteConfig{
			Path: "./cardsync.db",
		},
	}
}
