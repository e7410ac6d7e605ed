package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	NoteStorePostgres = "postgres"
	NoteStoreDynamoDB = "dynamodb"
	NoteStoreMemory   = "memory"

	ObjectStoreDisk = "disk"
	ObjectStoreS3   = "s3"
)

type Account struct {
	Handle       string `toml:"handle"`
	Name         string `toml:"name"`
	Email        string `toml:"email"`
	PasswordHash string `toml:"password_hash"`
}

type Config struct {
	Environment string `toml:"-"`

	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	PublicBaseURL string `toml:"public_base_url"`
	MaxUploadMB   int64  `toml:"max_upload_mb"`
	// origins allowed to call the JSON API from a browser
	AllowedOrigins []string `toml:"allowed_origins"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// identity
	RedisHost                   string    `toml:"redis_host"`
	RedisPort                   string    `toml:"redis_port"`
	SessionTTL                  string    `toml:"session_ttl"`
	LoginRateLimitAllowedPerMin int       `toml:"login_rate_limit_allowed_per_min"`
	Accounts                    []Account `toml:"accounts"`

	// note store
	NoteStore      string `toml:"note_store"`
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`
	DynamoDBTable  string `toml:"dynamodb_table"`
	AWSRegion      string `toml:"aws_region"`

	// object store
	ObjectStore   string `toml:"object_store"`
	DiskRootPath  string `toml:"disk_root_path"`
	S3Bucket      string `toml:"s3_bucket"`
	DisplayURLTTL string `toml:"display_url_ttl"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config [%s]: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for env [%s]: %w", env, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.NoteStore {
	case NoteStorePostgres, NoteStoreDynamoDB, NoteStoreMemory:
	case "":
		return errors.New("note_store not set")
	default:
		return fmt.Errorf("unknown note_store: %s", c.NoteStore)
	}

	switch c.ObjectStore {
	case ObjectStoreDisk:
		if c.DiskRootPath == "" {
			return errors.New("disk_root_path not set")
		}
	case ObjectStoreS3:
		if c.S3Bucket == "" {
			return errors.New("s3_bucket not set")
		}
	case "":
		return errors.New("object_store not set")
	default:
		return fmt.Errorf("unknown object_store: %s", c.ObjectStore)
	}

	if c.NoteStore == NoteStoreDynamoDB && c.DynamoDBTable == "" {
		return errors.New("dynamodb_table not set")
	}

	if _, err := c.SessionTTLDuration(); err != nil {
		return err
	}
	if _, err := c.DisplayURLTTLDuration(); err != nil {
		return err
	}

	for i, acc := range c.Accounts {
		if acc.Handle == "" || acc.PasswordHash == "" {
			return fmt.Errorf("account %d: handle and password_hash are required", i)
		}
	}

	return nil
}

// SessionTTLDuration defaults to one week.
func (c *Config) SessionTTLDuration() (time.Duration, error) {
	return parseDuration("session_ttl", c.SessionTTL, 24*7*time.Hour)
}

// DisplayURLTTLDuration defaults to 15 minutes.
func (c *Config) DisplayURLTTLDuration() (time.Duration, error) {
	return parseDuration("display_url_ttl", c.DisplayURLTTL, 15*time.Minute)
}

func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return c.MaxUploadMB << 20
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
