package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Persistence backend names accepted in PERSISTENCE_BACKEND.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Config holds application configuration populated from environment variables.
type Config struct {
	// Core
	Port      int
	LogLevel  string
	LogPretty bool

	// Auth
	JWTSecret         string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	BootstrapEmail    string
	BootstrapPassword string

	// Persistence
	PersistenceBackend string
	MongoURI           string

	// Realtime bridge
	RedisURL string

	// Object storage
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
}

// Load reads configuration from environment variables. It returns an error if
// any variable is set but cannot be parsed, or if the combination of values is
// invalid. Empty or whitespace-only values count as unset.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Port:      p.int("PORT", 3000),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogPretty: p.bool("LOG_PRETTY", false),

		JWTSecret:         envStr("JWT_SECRET", "dev-only-change-me-in-prod"),
		AccessTTL:         time.Duration(p.int("ACCESS_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:        time.Duration(p.int("REFRESH_TTL_DAYS", 30)) * 24 * time.Hour,
		BootstrapEmail:    envStr("BOOTSTRAP_EMAIL", "owner@galynx.local"),
		BootstrapPassword: envStr("BOOTSTRAP_PASSWORD", "ChangeMe123!"),

		PersistenceBackend: normalizeBackend(envStr("PERSISTENCE_BACKEND", BackendMemory)),
		MongoURI:           envStr("MONGO_URI", ""),

		RedisURL: envStr("REDIS_URL", ""),

		S3Bucket:          envStr("S3_BUCKET", ""),
		S3Region:          envStr("S3_REGION", "us-east-1"),
		S3Endpoint:        envStr("S3_ENDPOINT", ""),
		S3AccessKeyID:     envStr("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: envStr("S3_SECRET_ACCESS_KEY", ""),
		S3ForcePathStyle:  p.bool("S3_FORCE_PATH_STYLE", true),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// S3Configured returns true when a presigning bucket is set, indicating that
// attachment URLs should be produced by the real object store.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}

func (c *Config) validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must not be empty"))
	}
	if c.AccessTTL < time.Minute {
		errs = append(errs, fmt.Errorf("ACCESS_TTL_MINUTES must be at least 1"))
	}
	if c.RefreshTTL < 24*time.Hour {
		errs = append(errs, fmt.Errorf("REFRESH_TTL_DAYS must be at least 1"))
	}
	if c.BootstrapEmail == "" || c.BootstrapPassword == "" {
		errs = append(errs, fmt.Errorf("BOOTSTRAP_EMAIL and BOOTSTRAP_PASSWORD must not be empty"))
	}
	if c.PersistenceBackend == BackendMongo && c.MongoURI == "" {
		errs = append(errs, fmt.Errorf("MONGO_URI is required when PERSISTENCE_BACKEND is mongo"))
	}

	return errors.Join(errs...)
}

// normalizeBackend maps the accepted backend aliases onto the canonical names.
// Unknown values fall back to the memory backend.
func normalizeBackend(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mongo", "mongodb", "documentdb":
		return BackendMongo
	default:
		return BackendMemory
	}
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", key, v))
		return fallback
	}
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
