// Package config loads paperq settings from an optional YAML file overlaid
// with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apresai/paperq/internal/answer"
	"github.com/apresai/paperq/internal/store"
)

var storeDrivers = []string{store.BackendNone, store.BackendMemory, store.BackendSQLite, store.BackendPostgres, store.BackendDynamoDB}

// Config holds every setting shared by the CLI, the server and the Lambda.
type Config struct {
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Table  string `yaml:"table"`
	} `yaml:"store"`
	AWS struct {
		Region       string `yaml:"region"`
		Bucket       string `yaml:"bucket"`
		SecretPrefix string `yaml:"secret_prefix"`
	} `yaml:"aws"`
	Server struct {
		Port           int      `yaml:"port"`
		WebhookSecret  string   `yaml:"webhook_secret"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		MaxTasks       int      `yaml:"max_tasks"`
		TimeoutSeconds int      `yaml:"processing_timeout_seconds"`
	} `yaml:"server"`
	Ingest struct {
		MaxPDFSizeMB int  `yaml:"max_pdf_size_mb"`
		OCR          bool `yaml:"ocr"`
	} `yaml:"ingest"`
	Answer struct {
		Model       string `yaml:"model"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"answer"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	c.Store.Driver = store.BackendMemory
	c.Store.Table = "paperq-prod"
	c.AWS.Region = "us-east-1"
	c.AWS.SecretPrefix = "/paperq/"
	c.Server.Port = 8000
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.MaxTasks = 5
	c.Server.TimeoutSeconds = 300
	c.Ingest.MaxPDFSizeMB = 50
	c.Ingest.OCR = true
	c.Answer.Model = "haiku"
	c.Answer.Concurrency = 4
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

// Load reads path (if non-empty), applies the environment and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("DB_DRIVER", &c.Store.Driver)
	str("DB_DSN", &c.Store.DSN)
	str("DYNAMODB_TABLE", &c.Store.Table)
	str("AWS_REGION", &c.AWS.Region)
	str("S3_BUCKET", &c.AWS.Bucket)
	str("SECRET_PREFIX", &c.AWS.SecretPrefix)
	str("WEBHOOK_SECRET", &c.Server.WebhookSecret)
	str("ANSWER_MODEL", &c.Answer.Model)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	num("HTTP_PORT", &c.Server.Port)
	num("MAX_TASKS", &c.Server.MaxTasks)
	num("PROCESSING_TIMEOUT_SECONDS", &c.Server.TimeoutSeconds)
	num("MAX_PDF_SIZE_MB", &c.Ingest.MaxPDFSizeMB)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	return errors.Join(errs...)
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q must be one of %s", c.Store.Driver, strings.Join(storeDrivers, ", ")))
	}
	if c.Store.Driver == store.BackendDynamoDB && c.Store.Table == "" {
		errs = append(errs, errors.New("store.table is required for dynamodb"))
	}
	if c.Answer.Model != "" && !slices.Contains(answer.Models(), c.Answer.Model) {
		errs = append(errs, fmt.Errorf("answer.model %q must be one of %s", c.Answer.Model, strings.Join(answer.Models(), ", ")))
	}
	if c.Answer.Concurrency < 1 {
		errs = append(errs, errors.New("answer.concurrency must be at least 1"))
	}
	if c.Ingest.MaxPDFSizeMB < 1 {
		errs = append(errs, errors.New("ingest.max_pdf_size_mb must be positive"))
	}
	if c.Server.MaxTasks < 1 {
		errs = append(errs, errors.New("server.max_tasks must be positive"))
	}
	if c.Server.TimeoutSeconds < 1 {
		errs = append(errs, errors.New("server.processing_timeout_seconds must be positive"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c Config) MaxPDFBytes() int64 {
	return int64(c.Ingest.MaxPDFSizeMB) << 20
}

func (c Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
