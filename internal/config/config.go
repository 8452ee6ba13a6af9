package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"certEngine/internal/certificate"
)

// Config aggregates application settings sourced from environment variables.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Clamd       ClamdConfig       `mapstructure:"clamd"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int   `mapstructure:"port"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	// MaxArchiveSize caps the number of attendees in one synchronous zip download.
	MaxArchiveSize int `mapstructure:"max_archive_size"`
	// AllowedOrigins is a comma-separated websocket Origin allow-list; empty means same host only.
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins splits AllowedOrigins, dropping blanks and trailing slashes.
func (a APIConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.AllowedOrigins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TemplateTTL is how long a template record stays in the read-through cache; 0 disables caching.
	TemplateTTL time.Duration `mapstructure:"template_ttl"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ClamdConfig 控制上传背景图时的病毒扫描。
type ClamdConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// CertificateConfig holds rendering settings shared by the API, the worker and the CLI.
type CertificateConfig struct {
	PageWidth  float64 `mapstructure:"page_width"`
	PageHeight float64 `mapstructure:"page_height"`
	// DefaultBackground is a file path replacing the embedded default background.
	DefaultBackground string        `mapstructure:"default_background"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	MaxImageBytes     int64         `mapstructure:"max_image_bytes"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	FontRegular       string        `mapstructure:"font_regular"`
	FontBold          string        `mapstructure:"font_bold"`
}

// Page returns the configured page size.
func (c CertificateConfig) Page() certificate.PageSize {
	return certificate.PageSize{Width: c.PageWidth, Height: c.PageHeight}
}

// DefaultBackgroundRef is the image reference handed to the compositor.
func (c CertificateConfig) DefaultBackgroundRef() string {
	if p := strings.TrimSpace(c.DefaultBackground); p != "" {
		return "bundled:" + p
	}
	return certificate.DefaultBackgroundRef
}

// WorkerConfig 控制 asynq worker 的并发。
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.max_upload_bytes", 10<<20)
	v.SetDefault("api.max_archive_size", 500)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "certengine")
	v.SetDefault("database.user", "certengine")
	v.SetDefault("database.password", "certengine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.template_ttl", 5*time.Minute)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "certificates")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("clamd.enabled", false)
	v.SetDefault("clamd.address", "tcp://localhost:3310")
	v.SetDefault("certificate.page_width", certificate.CanonicalPage.Width)
	v.SetDefault("certificate.page_height", certificate.CanonicalPage.Height)
	v.SetDefault("certificate.fetch_timeout", 15*time.Second)
	v.SetDefault("certificate.max_image_bytes", 20<<20)
	v.SetDefault("certificate.batch_delay", 500*time.Millisecond)
	v.SetDefault("worker.concurrency", 4)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.max_upload_bytes":           "API_MAX_UPLOAD_BYTES",
		"api.max_archive_size":           "API_MAX_ARCHIVE_SIZE",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"redis.password":                 "REDIS_PASSWORD",
		"redis.db":                       "REDIS_DB",
		"redis.template_ttl":             "REDIS_TEMPLATE_TTL",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"clamd.enabled":                  "CLAMD_ENABLED",
		"clamd.address":                  "CLAMD_ADDRESS",
		"certificate.page_width":         "CERT_PAGE_WIDTH",
		"certificate.page_height":        "CERT_PAGE_HEIGHT",
		"certificate.default_background": "CERT_DEFAULT_BACKGROUND",
		"certificate.fetch_timeout":      "CERT_FETCH_TIMEOUT",
		"certificate.max_image_bytes":    "CERT_MAX_IMAGE_BYTES",
		"certificate.batch_delay":        "CERT_BATCH_DELAY",
		"certificate.font_regular":       "CERT_FONT_REGULAR",
		"certificate.font_bold":          "CERT_FONT_BOLD",
		"worker.concurrency":             "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.MaxArchiveSize <= 0 {
		return errors.New("api max archive size must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.Redis.TemplateTTL < 0 {
		return errors.New("redis template ttl must not be negative")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Clamd.Enabled && cfg.Clamd.Address == "" {
		return errors.New("clamd address is required when scanning is enabled")
	}
	if err := cfg.Certificate.Page().Validate(); err != nil {
		return fmt.Errorf("certificate page: %w", err)
	}
	if cfg.Certificate.FetchTimeout <= 0 {
		return errors.New("certificate fetch timeout must be positive")
	}
	if cfg.Certificate.MaxImageBytes <= 0 {
		return errors.New("certificate max image bytes must be positive")
	}
	if cfg.Certificate.BatchDelay < 0 {
		return errors.New("certificate batch delay must not be negative")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
