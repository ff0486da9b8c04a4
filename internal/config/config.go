package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with FACEWATCH_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMariaDB  = "mariadb"
	StoreBolt     = "bolt"
)

// Blob backends selectable with BLOB_BACKEND.
const (
	BlobLocal = "local"
	BlobMinio = "minio"
)

type Config struct {
	Store     StoreConfig
	Database  DatabaseConfig // PostgreSQL
	MariaDB   DatabaseConfig
	Bolt      BoltConfig
	Matching  MatchingConfig
	Embedding EmbeddingConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	Blob      BlobConfig
	Web       WebConfig
	Log       LogConfig
}

type StoreConfig struct {
	Backend string // memory, postgres, mariadb or bolt (default memory)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL or MariaDB DSN
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type BoltConfig struct {
	Path string // defaults to facewatch.db
}

type MatchingConfig struct {
	Profile           string             // Active descriptor source profile
	Profiles          map[string]Profile // Known profiles keyed by name
	RepositoryTimeout time.Duration      // Bound on every repository call (default 5s)
}

type EmbeddingConfig struct {
	URL     string        // defaults to http://localhost:8000
	Timeout time.Duration // defaults to 30s
}

type SMTPConfig struct {
	Host     string // empty disables email delivery
	Port     int    // defaults to 587
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured.
func (c *SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type NotifyConfig struct {
	Workers     int           // Dispatch workers draining the event queue (default 2)
	QueueSize   int           // Bounded event queue capacity (default 1024)
	SendTimeout time.Duration // Bound on a single delivery (default 10s)
	RatePerSec  float64       // Outbound send rate across all workers (default 10)
	Concurrency int           // Parallel sends per event (default 4)
}

type BlobConfig struct {
	Backend string // local or minio (default local)
	Dir     string // local directory, defaults to ./data/sightings

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

type WebConfig struct {
	Host           string // defaults to 0.0.0.0
	Port           int    // defaults to 8080
	APIToken       string // optional bearer token guarding /api/v1
	AllowedOrigins string // comma separated CORS origins
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration parses a Go duration ("5s", "1m"). Invalid or non-positive values fall back.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

// Load reads configuration from the environment and the descriptor profiles.
func Load() (*Config, error) {
	profiles, active, err := loadProfiles(os.Getenv("FACEWATCH_PROFILES_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend: strings.ToLower(envString("FACEWATCH_STORE", StoreMemory)),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MariaDB: DatabaseConfig{
			URL:          os.Getenv("MARIADB_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Bolt: BoltConfig{
			Path: envString("BOLT_PATH", "facewatch.db"),
		},
		Matching: MatchingConfig{
			Profile:           envString("FACEWATCH_PROFILE", active),
			Profiles:          profiles,
			RepositoryTimeout: envDuration("FACEWATCH_REPOSITORY_TIMEOUT", 5*time.Second),
		},
		Embedding: EmbeddingConfig{
			URL:     envString("EMBEDDING_URL", "http://localhost:8000"),
			Timeout: envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Notify: NotifyConfig{
			Workers:     envInt("NOTIFY_WORKERS", 2),
			QueueSize:   envInt("NOTIFY_QUEUE_SIZE", 1024),
			SendTimeout: envDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
			RatePerSec:  envFloat("NOTIFY_RATE_PER_SEC", 10),
			Concurrency: envInt("NOTIFY_CONCURRENCY", 4),
		},
		Blob: BlobConfig{
			Backend:        strings.ToLower(envString("BLOB_BACKEND", BlobLocal)),
			Dir:            envString("BLOB_DIR", "data/sightings"),
			MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinioBucket:    envString("MINIO_BUCKET", "facewatch"),
			MinioUseSSL:    envBool("MINIO_USE_SSL"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env parsing cannot express.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreBolt:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for store %q", c.Store.Backend)
		}
	case StoreMariaDB:
		if c.MariaDB.URL == "" {
			return fmt.Errorf("MARIADB_DSN is required for store %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Blob.Backend {
	case BlobLocal:
	case BlobMinio:
		if c.Blob.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for blob backend %q", c.Blob.Backend)
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}

	for name, p := range c.Matching.Profiles {
		if err := p.validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	if _, err := c.Matching.Active(); err != nil {
		return err
	}
	return nil
}
