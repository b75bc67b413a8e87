// Package config loads armlog settings from defaults, an optional YAML file
// and ARMLOG_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ARMLOG_"

type Config struct {
	Store        Store  `yaml:"store"`
	ArtifactsDir string `yaml:"artifacts_dir" validate:"required"`
	ExportsDir   string `yaml:"exports_dir" validate:"required"`
	Workers      int    `yaml:"workers" validate:"min=1,max=256"`
	LogLevel     string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error development"`
	Server       Server `yaml:"server"`
	Watch        Watch  `yaml:"watch"`
}

type Store struct {
	Kind   string `yaml:"kind" validate:"oneof=memory sqlite"`
	DBPath string `yaml:"db_path" validate:"required_if=Kind sqlite"`
}

type Server struct {
	Addr           string        `yaml:"addr" validate:"required"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"gt=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type Watch struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Store:        Store{Kind: "memory", DBPath: "armlog.db"},
		ArtifactsDir: "runs",
		ExportsDir:   "exports",
		Workers:      1,
		LogLevel:     "info",
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 64 << 20,
		},
		Watch: Watch{Debounce: 250 * time.Millisecond},
	}
}

// Load reads path (when non-empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	str("STORE", &c.Store.Kind)
	str("DB_PATH", &c.Store.DBPath)
	str("ARTIFACTS_DIR", &c.ArtifactsDir)
	str("EXPORTS_DIR", &c.ExportsDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("ADDR", &c.Server.Addr)

	if v, ok := lookup(envPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", envPrefix, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(envPrefix + "WATCH_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sWATCH_DEBOUNCE: %w", envPrefix, err)
		}
		c.Watch.Debounce = d
	}
	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
