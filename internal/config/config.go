package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/downsize/internal/domain"
	"github.com/hibiken/asynq"
	"gopkg.in/yaml.v3"
)

var ErrInvalidQuality = errors.New("jpeg quality must be between 1 and 100")

type Config struct {
	Resize    ResizeConfig    `yaml:"resize"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ResizeConfig struct {
	MaxWidth    int    `yaml:"max_width"`
	MaxHeight   int    `yaml:"max_height"`
	Suffix      string `yaml:"suffix"`
	OutputDir   string `yaml:"output_dir"`
	Format      string `yaml:"format"`
	Overwrite   bool   `yaml:"overwrite"`
	FailFast    bool   `yaml:"fail_fast"`
	Concurrency int    `yaml:"concurrency"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	AutoOrient  bool   `yaml:"auto_orient"`
}

func (r ResizeConfig) Bound() domain.Dimensions {
	return domain.Dimensions{Width: r.MaxWidth, Height: r.MaxHeight}
}

func (r ResizeConfig) OutputSpec() domain.OutputSpec {
	return domain.OutputSpec{
		Suffix:    r.Suffix,
		Dir:       r.OutputDir,
		Format:    domain.Format(r.Format),
		Overwrite: r.Overwrite,
	}
}

type QueueConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Name          string `yaml:"name"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}

// StorageConfig enables the object-store mirror when Bucket is set.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// DatabaseConfig selects the Postgres run ledger when DSN is set.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// NotifyConfig posts a signed report to WebhookURL after each CLI run.
type NotifyConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	MaxAttempts   int    `yaml:"max_attempts"`
}

func Default() Config {
	return Config{
		Resize: ResizeConfig{
			MaxWidth:    domain.DefaultBound.Width,
			MaxHeight:   domain.DefaultBound.Height,
			Concurrency: 1,
			JPEGQuality: 95,
			AutoOrient:  true,
		},
		Queue: QueueConfig{
			RedisAddr: "localhost:6379",
			Name:      "downsize",
		},
		Worker: WorkerConfig{
			Concurrency: max(2, runtime.NumCPU()),
			MetricsAddr: ":9464",
			LockTTL:     2 * time.Minute,
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Prefix:   "outputs",
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
		Notify: NotifyConfig{
			MaxAttempts: 3,
		},
	}
}

// Load layers defaults, the optional YAML file at path and DOWNSIZE_*
// environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Resize.Bound().ValidateBound(); err != nil {
		return err
	}
	if err := c.Resize.OutputSpec().Validate(); err != nil {
		return err
	}
	if q := c.Resize.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuality, q)
	}
	if c.Resize.Concurrency < 1 {
		return errors.New("resize.concurrency must be at least 1")
	}
	return nil
}

func applyEnv(cfg *Config) {
	r := &cfg.Resize
	r.MaxWidth = envInt("DOWNSIZE_MAX_WIDTH", r.MaxWidth)
	r.MaxHeight = envInt("DOWNSIZE_MAX_HEIGHT", r.MaxHeight)
	r.Suffix = env("DOWNSIZE_SUFFIX", r.Suffix)
	r.OutputDir = env("DOWNSIZE_OUTPUT_DIR", r.OutputDir)
	r.Format = env("DOWNSIZE_FORMAT", r.Format)
	r.Overwrite = envBool("DOWNSIZE_OVERWRITE", r.Overwrite)
	r.FailFast = envBool("DOWNSIZE_FAIL_FAST", r.FailFast)
	r.Concurrency = envInt("DOWNSIZE_CONCURRENCY", r.Concurrency)
	r.JPEGQuality = envInt("DOWNSIZE_JPEG_QUALITY", r.JPEGQuality)
	r.AutoOrient = envBool("DOWNSIZE_AUTO_ORIENT", r.AutoOrient)

	q := &cfg.Queue
	q.RedisAddr = env("REDIS_ADDR", q.RedisAddr)
	q.RedisPassword = env("REDIS_PASSWORD", q.RedisPassword)
	q.RedisDB = envInt("REDIS_DB", q.RedisDB)
	q.Name = env("DOWNSIZE_QUEUE", q.Name)

	w := &cfg.Worker
	w.Concurrency = envInt("WORKER_CONCURRENCY", w.Concurrency)
	w.MetricsAddr = env("WORKER_METRICS_ADDR", w.MetricsAddr)
	w.LockTTL = envDuration("WORKER_LOCK_TTL", w.LockTTL)

	s := &cfg.Storage
	s.Endpoint = env("MINIO_ENDPOINT", s.Endpoint)
	s.AccessKey = env("MINIO_ACCESS_KEY", s.AccessKey)
	s.SecretKey = env("MINIO_SECRET_KEY", s.SecretKey)
	s.Bucket = env("DOWNSIZE_S3_BUCKET", s.Bucket)
	s.Prefix = env("DOWNSIZE_S3_PREFIX", s.Prefix)
	s.UseSSL = envBool("MINIO_USE_SSL", s.UseSSL)

	cfg.Database.DSN = env("DOWNSIZE_POSTGRES_DSN", cfg.Database.DSN)

	t := &cfg.Telemetry
	t.TraceExporter = env("OTEL_TRACES_EXPORTER", t.TraceExporter)
	t.OTLPEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", t.OTLPEndpoint)
	t.OTLPInsecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", t.OTLPInsecure)
	t.PushgatewayURL = env("DOWNSIZE_PUSHGATEWAY_URL", t.PushgatewayURL)

	n := &cfg.Notify
	n.WebhookURL = env("DOWNSIZE_WEBHOOK_URL", n.WebhookURL)
	n.WebhookSecret = env("DOWNSIZE_WEBHOOK_SECRET", n.WebhookSecret)
	n.MaxAttempts = envInt("DOWNSIZE_WEBHOOK_MAX_ATTEMPTS", n.MaxAttempts)
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
