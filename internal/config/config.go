// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/fieldcrypt"
)

// Database drivers accepted in CIVICRECORDS_DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr      string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Keyring is nil when CIVICRECORDS_FIELD_KEYS is unset.
	Keyring *fieldcrypt.Keyring

	RedisAddr     string
	RedisPassword string
	QueueSize     int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	TemplateDir     string
	TemplateCatalog string
	DisplayZone     string
}

// HasSMTP reports whether outgoing mail is configured. Without it
// notifications are only logged.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}

// HasDocumentStore reports whether rendered documents are uploaded.
func (c *Config) HasDocumentStore() bool {
	return c.S3Bucket != ""
}

// RequireKeyring returns the field keyring or an error naming the missing
// variable. Commands that touch encrypted columns call it at startup.
func (c *Config) RequireKeyring() (*fieldcrypt.Keyring, error) {
	if c.Keyring == nil {
		return nil, errors.New("CIVICRECORDS_FIELD_KEYS is required")
	}
	return c.Keyring, nil
}

// Load reads an optional .env file (path overridable with
// CIVICRECORDS_ENV_FILE) and then the CIVICRECORDS_ environment variables.
// Variables already set in the environment win over the file. Invalid
// values fail fast.
func Load() (*Config, error) {
	envFile := getEnv("CIVICRECORDS_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		ListenAddr:    getEnv("CIVICRECORDS_LISTEN_ADDR", "127.0.0.1:8080"),
		DBDriver:      getEnv("CIVICRECORDS_DB_DRIVER", DriverSQLite),
		DBPath:        getEnv("CIVICRECORDS_DB_PATH", "civicrecords.db"),
		DatabaseURL:   os.Getenv("CIVICRECORDS_DATABASE_URL"),
		RedisAddr:     os.Getenv("CIVICRECORDS_REDIS_ADDR"),
		RedisPassword: os.Getenv("CIVICRECORDS_REDIS_PASSWORD"),
		SMTPHost:      os.Getenv("CIVICRECORDS_SMTP_HOST"),
		SMTPUsername:  os.Getenv("CIVICRECORDS_SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("CIVICRECORDS_SMTP_PASSWORD"),
		SMTPFrom:      getEnv("CIVICRECORDS_SMTP_FROM", "records@localhost"),
		S3Endpoint:    os.Getenv("CIVICRECORDS_S3_ENDPOINT"),
		S3Region:      getEnv("CIVICRECORDS_S3_REGION", "auto"),
		S3Bucket:      os.Getenv("CIVICRECORDS_S3_BUCKET"),
		S3AccessKey:   os.Getenv("CIVICRECORDS_S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("CIVICRECORDS_S3_SECRET_KEY"),
		TemplateDir:   getEnv("CIVICRECORDS_TEMPLATE_DIR", "templates"),
		DisplayZone:   getEnv("CIVICRECORDS_DISPLAY_ZONE", "Asia/Manila"),
	}
	cfg.TemplateCatalog = getEnv("CIVICRECORDS_TEMPLATE_CATALOG", filepath.Join(cfg.TemplateDir, "templates.yaml"))

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("CIVICRECORDS_DATABASE_URL is required when CIVICRECORDS_DB_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("CIVICRECORDS_DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.DBDriver)
	}

	var err error
	if cfg.ShutdownTimeout, err = getDuration("CIVICRECORDS_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getInt("CIVICRECORDS_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getInt("CIVICRECORDS_SMTP_PORT", 587); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("CIVICRECORDS_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("CIVICRECORDS_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if cfg.Keyring, err = loadKeyring(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadKeyring builds the field keyring. Key values are never echoed in
// error messages.
func loadKeyring() (*fieldcrypt.Keyring, error) {
	spec := os.Getenv("CIVICRECORDS_FIELD_KEYS")
	if spec == "" {
		return nil, nil
	}

	keys, err := fieldcrypt.ParseKeys(spec)
	if err != nil {
		return nil, fmt.Errorf("CIVICRECORDS_FIELD_KEYS: %w", err)
	}

	primary := os.Getenv("CIVICRECORDS_FIELD_KEY_PRIMARY")
	if primary == "" {
		if len(keys) != 1 {
			return nil, errors.New("CIVICRECORDS_FIELD_KEY_PRIMARY is required when more than one field key is configured")
		}
		for id := range keys {
			primary = id
		}
	}

	var legacy []byte
	if v := os.Getenv("CIVICRECORDS_FIELD_KEY_LEGACY"); v != "" {
		legacy, err = decodeLegacyKey(v)
		if err != nil {
			return nil, err
		}
	}

	ring, err := fieldcrypt.NewKeyring(primary, keys, legacy)
	if err != nil {
		return nil, fmt.Errorf("field keys: %w", err)
	}
	return ring, nil
}

// decodeLegacyKey accepts the legacy key either as 64 hex characters or as
// the raw 32-character string the previous server used.
func decodeLegacyKey(v string) ([]byte, error) {
	if len(v) == 2*fieldcrypt.KeySize {
		if b, err := hex.DecodeString(v); err == nil {
			return b, nil
		}
	}
	if len(v) == fieldcrypt.KeySize {
		return []byte(v), nil
	}
	return nil, fmt.Errorf("CIVICRECORDS_FIELD_KEY_LEGACY must be %d hex-encoded or %d raw bytes", fieldcrypt.KeySize, fieldcrypt.KeySize)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid number %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
