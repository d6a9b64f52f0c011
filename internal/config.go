package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/dms/internal/extract"
	"github.com/starford/dms/internal/ocr"
	"github.com/starford/dms/internal/ollama"
	"github.com/starford/dms/internal/resilience"
	"github.com/starford/dms/internal/storage"
	"github.com/starford/dms/internal/summarize"
	"github.com/starford/dms/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]+$`)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Root       RootConfig        `yaml:"root"`
	Scan       ScanConfig        `yaml:"scan"`
	Summarizer SummarizerConfig  `yaml:"summarizer"`
	Categories CategoriesConfig  `yaml:"categories"`
	OCR        OCRConfig         `yaml:"ocr"`
	Catalog    CatalogConfig     `yaml:"catalog"`
	HTTP       HTTPConfig        `yaml:"http"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Root.Validate(); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if err := c.Scan.Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if err := c.Summarizer.Validate(); err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}
	if err := c.Categories.Validate(); err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return c.Auth.Validate()
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

// RootConfig locates the document root and its rendered index.
type RootConfig struct {
	Path               string `yaml:"path"`
	IndexFile          string `yaml:"index_file"`
	ArchiveCheckpoints bool   `yaml:"archive_checkpoints"`
}

// Validate validates the root configuration.
func (c *RootConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.IndexFile, validation.Required),
	)
}

// ScanConfig selects candidate files.
type ScanConfig struct {
	Extensions    []string      `yaml:"extensions"`
	Exclude       []string      `yaml:"exclude"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.Match(extPattern))),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// Filter returns the storage filter for the configured scan.
func (c *ScanConfig) Filter() storage.Filter {
	return storage.Filter{Extensions: c.Extensions, Exclude: c.Exclude}
}

// RetryConfig tunes retries of summarizer calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// BreakerConfig tunes the summarizer circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
}

// SummarizerConfig points at an Ollama-compatible generation backend.
type SummarizerConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxWords          int           `yaml:"max_words"`
	MaxInputChars     int           `yaml:"max_input_chars"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Retry             RetryConfig   `yaml:"retry"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// Validate validates the summarizer configuration.
func (c *SummarizerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.MaxWords, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxInputChars, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Breaker,
		validation.Field(&c.Breaker.FailureRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Client returns the backend client settings.
func (c *SummarizerConfig) Client() ollama.Config {
	return ollama.Config{
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Temperature:       c.Temperature,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// Resilience returns the retry and breaker policy. Zero fields take the
// package defaults.
func (c *SummarizerConfig) Resilience() resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    c.Retry.MaxAttempts,
		RetryInitialBackoff: c.Retry.InitialBackoff,
		RetryMaxBackoff:     c.Retry.MaxBackoff,
		BreakerEnabled:      c.Breaker.Enabled,
		BreakerMinRequests:  c.Breaker.MinRequests,
		BreakerFailureRatio: c.Breaker.FailureRatio,
		BreakerOpenTimeout:  c.Breaker.OpenTimeout,
	}
}

// CategoriesConfig drives the keyword categorizer.
type CategoriesConfig struct {
	Default string           `yaml:"default"`
	Rules   []summarize.Rule `yaml:"rules"`
}

// Validate validates the categories configuration.
func (c *CategoriesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Default, validation.Required),
	); err != nil {
		return err
	}
	for i := range c.Rules {
		r := &c.Rules[i]
		if err := validation.ValidateStruct(r,
			validation.Field(&r.Category, validation.Required),
			validation.Field(&r.Keywords, validation.Required),
		); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// Categorizer builds the configured categorizer.
func (c *CategoriesConfig) Categorizer() summarize.Categorizer {
	return summarize.Categorizer{Rules: c.Rules, Default: c.Default}
}

// OCRConfig configures the tesseract stage.
type OCRConfig struct {
	Binary   string        `yaml:"binary"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the OCR configuration.
func (c *OCRConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Runner returns the OCR runner settings.
func (c *OCRConfig) Runner() ocr.Config {
	return ocr.Config{Binary: c.Binary, Language: c.Language, Timeout: c.Timeout}
}

// CatalogConfig controls the SQLite search catalog.
//
// Enabled only decides whether apply and render keep the catalog in sync;
// the read surfaces (serve, mcp, search) always open it and refresh it from
// the ledger. An empty Path places it at the root.
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration for the preview API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
		},
		Root: RootConfig{
			Path:      ".",
			IndexFile: workspace.DefaultIndexFile,
		},
		Scan: ScanConfig{
			Extensions: []string{
				".pdf", ".md", ".txt", ".html", ".htm", ".py", ".js", ".json",
				".xlsx", ".png", ".jpg", ".jpeg",
			},
			Exclude:       []string{".git/**", "**/node_modules/**", "**/.DS_Store"},
			WatchDebounce: 500 * time.Millisecond,
		},
		Summarizer: SummarizerConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "phi3:mini",
			Temperature:   0.3,
			Timeout:       120 * time.Second,
			MaxWords:      50,
			MaxInputChars: extract.DefaultMaxChars,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     4 * time.Second,
			},
			Breaker: BreakerConfig{
				Enabled:      true,
				MinRequests:  3,
				FailureRatio: 0.6,
				OpenTimeout:  30 * time.Second,
			},
		},
		Categories: CategoriesConfig{
			Default: "Guides",
			Rules:   summarize.DefaultRules(),
		},
		OCR: OCRConfig{
			Binary:  "tesseract",
			Timeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
