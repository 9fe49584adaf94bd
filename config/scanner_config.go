package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token store kinds
const (
	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Source
	ScanSource   string
	MboxPath     string
	MboxPageSize int

	// OAuth - Google
	GoogleCredentialsFile string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	StateSecret           string
	StateTTL              time.Duration

	// Token persistence
	TokenStore      string
	TokenFile       string
	TokenPassphrase string
	KeyringAccount  string

	// Gmail
	GmailQuery            string
	GmailPageSize         int
	GmailIncludeSpamTrash bool

	// Scan
	ScanConcurrency int
	SnippetRunes    int
	ScanTimeout     time.Duration
	SiblingFetchCap int

	// Probe
	ProbeConcurrency int
	ProbeMethod      string
	ProbeTimeout     time.Duration
	ProbeRatePerHost float64
	ProbeBurst       int
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Source
		ScanSource:   strings.ToLower(getEnv("SCAN_SOURCE", "gmail")),
		MboxPath:     getEnv("MBOX_PATH", ""),
		MboxPageSize: getEnvInt("MBOX_PAGE_SIZE", 100),

		// OAuth - Google
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:     getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/oauth2callback"),
		StateSecret:           getEnv("STATE_SECRET", ""),
		StateTTL:              getEnvDuration("STATE_TTL", 10*time.Minute),

		// Token persistence
		TokenStore:      strings.ToLower(getEnv("TOKEN_STORE", TokenStoreFile)),
		TokenFile:       getEnv("TOKEN_FILE", "token.json"),
		TokenPassphrase: getEnv("TOKEN_PASSPHRASE", ""),
		KeyringAccount:  getEnv("KEYRING_ACCOUNT", "gmail"),

		// Gmail
		GmailQuery:            getEnv("GMAIL_QUERY", ""),
		GmailPageSize:         getEnvInt("GMAIL_PAGE_SIZE", 500),
		GmailIncludeSpamTrash: getEnvBool("GMAIL_INCLUDE_SPAM_TRASH", true),

		// Scan
		ScanConcurrency: getEnvInt("SCAN_CONCURRENCY", 40),
		SnippetRunes:    getEnvInt("SNIPPET_RUNES", 60),
		ScanTimeout:     getEnvDuration("SCAN_TIMEOUT", 0),
		SiblingFetchCap: getEnvInt("ATTACHMENT_FETCH_CONCURRENCY", 8),

		// Probe
		ProbeConcurrency: getEnvInt("PROBE_CONCURRENCY", 40),
		ProbeMethod:      strings.ToUpper(getEnv("PROBE_METHOD", "GET")),
		ProbeTimeout:     time.Duration(getEnvInt("PROBE_TIMEOUT_SEC", 15)) * time.Second,
		ProbeRatePerHost: getEnvFloat("PROBE_RATE_PER_HOST", 20),
		ProbeBurst:       getEnvInt("PROBE_BURST", 40),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a scan.
func (c *Config) Validate() error {
	var errs []error
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		errs = append(errs, fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreFile, TokenStoreKeyring, c.TokenStore))
	}
	switch c.ProbeMethod {
	case "GET", "HEAD":
	default:
		errs = append(errs, fmt.Errorf("PROBE_METHOD must be GET or HEAD, got %q", c.ProbeMethod))
	}
	if c.ScanConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_CONCURRENCY must be positive, got %d", c.ScanConcurrency))
	}
	if c.ProbeConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("PROBE_CONCURRENCY must be positive, got %d", c.ProbeConcurrency))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
