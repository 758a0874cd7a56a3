// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback when the file does not exist)
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv()
//	if err != nil {
//		log.Fatal(err)
//	}
//	dbPath := cfg.Storage.DatabasePath
//	secret := cfg.Stripe.WebhookSecret
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Access        AccessConfig        `yaml:"access"`
	Import        ImportConfig        `yaml:"import"`
	Stripe        StripeConfig        `yaml:"stripe"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite or postgres
	DatabasePath string `yaml:"database_path"`
	PostgresURL  string `yaml:"postgres_url"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	DashboardPort  int      `yaml:"dashboard_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthHeader     string   `yaml:"auth_header"` // set by the auth proxy in front of the API
}

// AccessConfig selects the allow-list backends
type AccessConfig struct {
	StaticAllowList []string `yaml:"static_allow_list"`
	UseDynamicStore bool     `yaml:"use_dynamic_store"`
}

// ImportConfig holds importer settings
type ImportConfig struct {
	LookupFailurePolicy string `yaml:"lookup_failure_policy"` // block or warn
	DefaultCurrency     string `yaml:"default_currency"`
	LengthTolerance     int    `yaml:"length_tolerance"`
}

// StripeConfig holds Stripe webhook settings
type StripeConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// ExtractionConfig holds screenshot extraction settings
type ExtractionConfig struct {
	Backend      string `yaml:"backend"` // openai or gemini
	OpenAIAPIKey string `yaml:"openai_api_key"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	Model        string `yaml:"model"`
}

// ArchiveConfig holds upload archive settings
type ArchiveConfig struct {
	GCSBucket       string `yaml:"gcs_bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${STRIPE_WEBHOOK_SECRET})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Driver:       getEnv("LEDGERBOOK_DB_DRIVER", "sqlite"),
			DatabasePath: getEnv("LEDGERBOOK_DB_PATH", "ledgerbook.db"),
			PostgresURL:  os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8085),
			DashboardPort:  getEnvInt("DASHBOARD_PORT", 8086),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
			AuthHeader:     getEnv("AUTH_EMAIL_HEADER", "X-Auth-Request-Email"),
		},
		Access: AccessConfig{
			StaticAllowList: getEnvList("ALLOWED_EMAILS"),
			UseDynamicStore: getEnvBool("ALLOW_LIST_DYNAMIC", false),
		},
		Import: ImportConfig{
			LookupFailurePolicy: getEnv("LOOKUP_FAILURE_POLICY", "block"),
			DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "nok"),
			LengthTolerance:     getEnvInt("MATCH_LENGTH_TOLERANCE", 5),
		},
		Stripe: StripeConfig{
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Extraction: ExtractionConfig{
			Backend:      getEnv("EXTRACTION_BACKEND", "openai"),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			Model:        os.Getenv("EXTRACTION_MODEL"),
		},
		Archive: ArchiveConfig{
			GCSBucket:       os.Getenv("ARCHIVE_GCS_BUCKET"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() (*Config, error) {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath loads the file at path. Only a missing file falls back
// to environment variables; a file that exists but cannot be read or parsed
// is an error.
func LoadOrEnv_WithPath(path string) (*Config, error) {
	cfg, err := Load(path)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist):
		return LoadFromEnv(), nil
	default:
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
}

// applyDefaults fills the zero values a partial YAML file leaves behind.
func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "ledgerbook.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8085
	}
	if c.Server.DashboardPort == 0 {
		c.Server.DashboardPort = 8086
	}
	if c.Server.AuthHeader == "" {
		c.Server.AuthHeader = "X-Auth-Request-Email"
	}
	if c.Import.LookupFailurePolicy == "" {
		c.Import.LookupFailurePolicy = "block"
	}
	if c.Import.LengthTolerance == 0 {
		c.Import.LengthTolerance = 5
	}
	if c.Extraction.Backend == "" {
		c.Extraction.Backend = "openai"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("storage.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Import.LookupFailurePolicy {
	case "block", "warn":
	default:
		return fmt.Errorf("import.lookup_failure_policy must be block or warn, got %q", c.Import.LookupFailurePolicy)
	}

	switch c.Extraction.Backend {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown extraction backend %q", c.Extraction.Backend)
	}

	if len(c.Access.StaticAllowList) == 0 && !c.Access.UseDynamicStore {
		return fmt.Errorf("access: configure static_allow_list or use_dynamic_store")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetAPIKey retrieves an API key from config first, then tries multiple environment variable names
// Usage: GetAPIKey(cfg.Extraction.OpenAIAPIKey, "OPENAI_API_KEY")
//
//	GetAPIKey(cfg.Extraction.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
func (c *Config) GetAPIKey(configValue string, envVarNames ...string) string {
	if configValue != "" {
		return configValue
	}

	for _, envVar := range envVarNames {
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}

	return ""
}
