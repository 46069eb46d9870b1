// Package config centralizes how the page delivery service reads environment
// variables and exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	Address       string
	PublicBaseURL string

	// DatabaseURL is optional; when empty the service falls back to the
	// in-memory selection store.
	DatabaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPSecure   bool
	SMTPUser     string
	SMTPPassword string
	SenderAddr   string

	// Object store settings for catalog-held documents (s3:// sources).
	// All optional; when S3Endpoint is empty the object fetcher is disabled.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// SigningSecret protects /pdf-proxy URLs. When empty the proxy accepts
	// unsigned requests.
	SigningSecret []byte

	ScratchDir    string
	MaxFetchBytes int64
	FetchTimeout  time.Duration
	RenderDPI     int
	MaxPages      int
}

const (
	defaultAddress       = ":8080"
	defaultBaseURL       = "http://localhost:8080"
	defaultMaxFetchBytes = 50 << 20 // 50 MiB
	defaultFetchTimeout  = 30 * time.Second
	defaultRenderDPI     = 144
	defaultMaxPages      = 50
	defaultSMTPPort      = 587
)

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Address:       readEnv("PAGESEND_ADDRESS", defaultAddress),
		PublicBaseURL: strings.TrimRight(readEnv("PUBLIC_BASE_URL", defaultBaseURL), "/"),
		DatabaseURL:   readEnv("DATABASE_URL", ""),
		SMTPHost:      readEnv("SMTP_HOST", ""),
		SMTPPort:      parseInt("SMTP_PORT", defaultSMTPPort),
		SMTPSecure:    parseBool("SMTP_SECURE", false),
		SMTPUser:      readEnv("SMTP_USER", ""),
		SMTPPassword:  readEnv("SMTP_PASSWORD", ""),
		SenderAddr:    readEnv("SMTP_FROM", ""),
		S3Endpoint:    readEnv("PAGESEND_S3_ENDPOINT", ""),
		S3AccessKey:   readEnv("PAGESEND_S3_ACCESS_KEY", ""),
		S3SecretKey:   readEnv("PAGESEND_S3_SECRET_KEY", ""),
		S3Region:      readEnv("PAGESEND_S3_REGION", "us-east-1"),
		S3UseSSL:      parseBool("PAGESEND_S3_USE_SSL", true),
		SigningSecret: parseSecret("PAGESEND_SIGNING_SECRET"),
		ScratchDir:    readEnv("PAGESEND_SCRATCH_DIR", ""),
		MaxFetchBytes: parseInt64("PAGESEND_MAX_FETCH_BYTES", defaultMaxFetchBytes),
		FetchTimeout:  parseDuration("PAGESEND_FETCH_TIMEOUT", defaultFetchTimeout),
		RenderDPI:     parseInt("PAGESEND_RENDER_DPI", defaultRenderDPI),
		MaxPages:      parseInt("PAGESEND_MAX_PAGES", defaultMaxPages),
	}
	if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
		return nil, errors.New("PUBLIC_BASE_URL is not a valid URL")
	}
	if cfg.SenderAddr == "" {
		cfg.SenderAddr = cfg.SMTPUser
	}
	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = defaultMaxFetchBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = defaultRenderDPI
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return cfg, nil
}

// ViewURL builds the public viewer link for a selection id.
func (c *Config) ViewURL(selectionID string) string {
	return c.PublicBaseURL + "/view/" + selectionID
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

// RandomSecret returns a fresh 32-byte secret, used when signing is requested
// but no secret was configured.
func RandomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil
	}
	return buf
}
