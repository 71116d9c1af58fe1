package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is built once at process start and passed to the server, loader
// and resolver. Nothing reads the environment after Load returns.
type Config struct {
	Name              string        `toml:"name" env:"CLUBSITE_NAME"`
	Port              int           `toml:"port" env:"PORT"`
	CorsOrigin        string        `toml:"cors_origin" env:"CORS_ORIGIN"`
	RateLimitWindowMS int64         `toml:"rate_limit_window_ms" env:"RATE_LIMIT_WINDOW_MS"`
	RateLimitMax      int           `toml:"rate_limit_max" env:"RATE_LIMIT_MAX"`
	DataDir           string        `toml:"data_dir" env:"DATA_DIR"`
	AssetRoots        []string      `toml:"asset_roots" env:"ASSET_ROOTS"`
	MetricsEnabled    bool          `toml:"metrics_enabled" env:"METRICS_ENABLED"`
	TrustedProxies    []string      `toml:"trusted_proxies" env:"TRUSTED_PROXIES"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Publish           PublishConfig `toml:"publish"`
}

// PublishConfig names the S3 target of a static API export.
type PublishConfig struct {
	Bucket         string `toml:"bucket" env:"PUBLISH_BUCKET"`
	Prefix         string `toml:"prefix" env:"PUBLISH_PREFIX"`
	DistributionID string `toml:"distribution_id" env:"PUBLISH_DISTRIBUTION_ID"`
}

func Default() Config {
	return Config{
		Name:              "clubsite",
		Port:              3000,
		CorsOrigin:        "http://localhost:5173",
		RateLimitWindowMS: 60_000,
		RateLimitMax:      120,
		DataDir:           "data",
		AssetRoots:        []string{"assets"},
		MetricsEnabled:    true,
		TrustedProxies:    []string{"127.0.0.1", "::1"},
		ShutdownTimeout:   5 * time.Second,
	}
}

// Load applies defaults, then the TOML file at path (skipped when path is
// empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env parse failed: %w", err)
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	meta, err := toml.Decode(string(data), out)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.CorsOrigin = strings.TrimSpace(c.CorsOrigin)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.AssetRoots = trimList(c.AssetRoots)
	c.TrustedProxies = trimList(c.TrustedProxies)
	c.Publish.Prefix = strings.Trim(strings.TrimSpace(c.Publish.Prefix), "/")
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("config port out of range: %d", cfg.Port)
	}
	if err := validateOrigin(cfg.CorsOrigin); err != nil {
		return err
	}
	if cfg.RateLimitWindowMS <= 0 {
		return fmt.Errorf("config rate_limit_window_ms must be positive")
	}
	if cfg.RateLimitMax <= 0 {
		return fmt.Errorf("config rate_limit_max must be positive")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config missing data_dir")
	}
	if len(cfg.AssetRoots) == 0 {
		return fmt.Errorf("config requires at least one asset root")
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("config shutdown_timeout must not be negative")
	}
	return nil
}

func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config cors_origin must be * or an http(s) origin, got %q", origin)
	}
	return nil
}

// Addr is the listen address for the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RateLimitWindow is the rate limit window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// Shutdown is the graceful shutdown budget.
func (c Config) Shutdown() time.Duration {
	return c.ShutdownTimeout
}
