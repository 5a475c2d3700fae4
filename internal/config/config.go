package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// Config holds every setting of the server and the worker.
type Config struct {
	// Backend selects ImageMagick or GraphicsMagick (MAGICK_BACKEND).
	Backend magick.Backend

	// BinDir, when set, is searched for the tools instead of PATH (MAGICK_BIN_DIR).
	BinDir string

	// Timeout bounds each child process (MAGICK_TIMEOUT_MS).
	Timeout time.Duration

	// LogLevel is the minimum slog level (MAGICK_LOG_LEVEL).
	LogLevel slog.Level

	// PreviewMaxSide bounds previews attached to tool results (PREVIEW_MAX_SIDE).
	PreviewMaxSide int

	// Worker settings.
	RabbitMQURL      string        // RABBITMQ_URL
	Queue            string        // RABBITMQ_QUEUE
	StatusExchange   string        // RABBITMQ_STATUS_EXCHANGE
	StatusRoutingKey string        // RABBITMQ_STATUS_ROUTING_KEY
	BucketName       string        // AWS_BUCKET_NAME
	WorkDir          string        // WORK_DIR
	Concurrency      int           // WORKER_CONCURRENCY
	PresignTTL       time.Duration // PRESIGN_TTL
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Backend:          magick.ImageMagick,
		Timeout:          magick.DefaultTimeout,
		LogLevel:         slog.LevelInfo,
		PreviewMaxSide:   256,
		Queue:            "magick_jobs",
		StatusExchange:   "magick_status",
		StatusRoutingKey: "status",
		WorkDir:          filepath.Join(os.TempDir(), "magick-worker"),
		Concurrency:      2,
		PresignTTL:       15 * time.Minute,
	}
}

// Load reads .env and .env.<APP_ENV> from the working directory, if present,
// and then builds the configuration from the environment.
func Load() (*Config, error) {
	LoadEnvFiles(".")
	return FromEnv()
}

// LoadEnvFiles loads .env and then .env.<APP_ENV> (APP_ENV defaults to
// "dev") from dir into the process environment, so the environment specific
// file wins. Values from the files replace variables that are already set;
// missing files are skipped. It returns the files that were loaded.
func LoadEnvFiles(dir string) []string {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}

	var loaded []string
	for _, name := range []string{".env", ".env." + appEnv} {
		path := filepath.Join(dir, name)
		if err := godotenv.Overload(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}

// FromEnv builds a Config from Default and the process environment. Every
// malformed variable is reported; the returned error joins them.
func FromEnv() (*Config, error) {
	cfg := Default()
	var errs []error

	if v, ok := lookup("MAGICK_BACKEND"); ok {
		backend, err := magick.ParseBackend(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAGICK_BACKEND: %w", err))
		} else {
			cfg.Backend = backend
		}
	}
	if v, ok := lookup("MAGICK_BIN_DIR"); ok {
		cfg.BinDir = v
	}
	if v, ok := lookup("MAGICK_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAGICK_TIMEOUT_MS: %w", err))
		} else {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := lookup("MAGICK_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("MAGICK_LOG_LEVEL: %w", err))
		}
	}
	if v, ok := lookup("PREVIEW_MAX_SIDE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PREVIEW_MAX_SIDE: %w", err))
		} else {
			cfg.PreviewMaxSide = n
		}
	}

	if v, ok := lookup("RABBITMQ_URL"); ok {
		cfg.RabbitMQURL = v
	}
	if v, ok := lookup("RABBITMQ_QUEUE"); ok {
		cfg.Queue = v
	}
	if v, ok := lookup("RABBITMQ_STATUS_EXCHANGE"); ok {
		cfg.StatusExchange = v
	}
	if v, ok := lookup("RABBITMQ_STATUS_ROUTING_KEY"); ok {
		cfg.StatusRoutingKey = v
	}
	if v, ok := lookup("AWS_BUCKET_NAME"); ok {
		cfg.BucketName = v
	}
	if v, ok := lookup("WORK_DIR"); ok {
		cfg.WorkDir = v
	}
	if v, ok := lookup("WORKER_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY: %w", err))
		} else {
			cfg.Concurrency = n
		}
	}
	if v, ok := lookup("PRESIGN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PRESIGN_TTL: %w", err))
		} else {
			cfg.PresignTTL = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the MCP server depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.PreviewMaxSide <= 0 {
		errs = append(errs, errors.New("preview max side must be positive"))
	}
	if _, err := magick.ParseBackend(string(c.Backend)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateWorker checks Validate plus the settings the worker needs.
func (c *Config) ValidateWorker() error {
	errs := []error{c.Validate()}
	if c.RabbitMQURL == "" {
		errs = append(errs, errors.New("RABBITMQ_URL is required"))
	}
	if c.BucketName == "" {
		errs = append(errs, errors.New("AWS_BUCKET_NAME is required"))
	}
	if c.Queue == "" {
		errs = append(errs, errors.New("RABBITMQ_QUEUE must not be empty"))
	}
	if c.StatusExchange == "" {
		errs = append(errs, errors.New("RABBITMQ_STATUS_EXCHANGE must not be empty"))
	}
	if c.WorkDir == "" {
		errs = append(errs, errors.New("WORK_DIR must not be empty"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.PresignTTL <= 0 {
		errs = append(errs, errors.New("PRESIGN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// lookup returns the trimmed value of key, treating blank values as unset.
func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
