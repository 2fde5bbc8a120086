// Package config provides YAML configuration with environment overrides for
// GalleryFS. Precedence: defaults, then file, then GALLERYFS_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/internal/metrics"
	"github.com/galleryfs/galleryfs/internal/provider"
	"github.com/galleryfs/galleryfs/internal/provider/imagehost"
	"github.com/galleryfs/galleryfs/internal/provider/objectstore"
)

// Configuration represents the complete application configuration.
type Configuration struct {
	Global   GlobalConfig    `yaml:"global"`
	Provider provider.Config `yaml:"provider"`
	Cache    cache.Config    `yaml:"cache"`
	Metrics  metrics.Config  `yaml:"metrics"`
}

// GlobalConfig represents global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "INFO",
		},
		Provider: provider.Config{
			Type: provider.TypeObjectStore,
			ImageHost: &imagehost.Config{
				RequestTimeout: 30 * time.Second,
			},
			ObjectStore: &objectstore.Config{
				Backend: &objectstore.BackendConfig{
					Region:     "us-east-1",
					MaxRetries: 3,
				},
				SignedURLTTL: 15 * time.Minute,
			},
		},
		Cache: cache.Config{
			MaxDurableBytes: 64 * 1024 * 1024,
		},
		Metrics: metrics.Config{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "galleryfs",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the current
// values.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies GALLERYFS_* environment variable overrides.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("GALLERYFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("GALLERYFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("GALLERYFS_PROVIDER"); val != "" {
		c.Provider.Type = val
	}

	if val := os.Getenv("GALLERYFS_CACHE_DIR"); val != "" {
		c.Cache.Directory = val
	}
	if val := os.Getenv("GALLERYFS_CACHE_MAX_SIZE"); val != "" {
		size, err := ParseSize(val)
		if err != nil {
			return fmt.Errorf("invalid GALLERYFS_CACHE_MAX_SIZE: %w", err)
		}
		c.Cache.MaxDurableBytes = size
	}

	if ih := c.Provider.ImageHost; ih != nil {
		if val := os.Getenv("GALLERYFS_IMAGEHOST_BASE_URL"); val != "" {
			ih.BaseURL = val
		}
		if val := os.Getenv("GALLERYFS_IMAGEHOST_CLIENT_ID"); val != "" {
			ih.ClientID = val
		}
		if val := os.Getenv("GALLERYFS_IMAGEHOST_CLIENT_SECRET"); val != "" {
			ih.ClientSecret = val
		}
		if val := os.Getenv("GALLERYFS_IMAGEHOST_ACCESS_TOKEN"); val != "" {
			ih.AccessToken = val
		}
		if val := os.Getenv("GALLERYFS_IMAGEHOST_REFRESH_TOKEN"); val != "" {
			ih.RefreshToken = val
		}
	}

	if osCfg := c.Provider.ObjectStore; osCfg != nil && osCfg.Backend != nil {
		backend := osCfg.Backend
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_BUCKET"); val != "" {
			backend.Bucket = val
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_REGION"); val != "" {
			backend.Region = val
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_ENDPOINT"); val != "" {
			backend.Endpoint = val
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_ACCESS_KEY_ID"); val != "" {
			backend.AccessKeyID = val
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_SECRET_ACCESS_KEY"); val != "" {
			backend.SecretAccessKey = val
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_FORCE_PATH_STYLE"); val != "" {
			backend.ForcePathStyle = strings.ToLower(val) == "true"
		}
		if val := os.Getenv("GALLERYFS_OBJECTSTORE_PUBLIC_BASE_URL"); val != "" {
			osCfg.PublicBaseURL = val
		}
	}

	if val := os.Getenv("GALLERYFS_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("GALLERYFS_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}

	return nil
}

// SaveToFile writes the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Configuration) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.Provider.Type {
	case provider.TypeImageHost:
		ih := c.Provider.ImageHost
		if ih == nil || ih.BaseURL == "" {
			return fmt.Errorf("imagehost provider requires base_url")
		}
		if ih.ClientID == "" {
			return fmt.Errorf("imagehost provider requires client_id")
		}
	case provider.TypeObjectStore:
		osCfg := c.Provider.ObjectStore
		if osCfg == nil || osCfg.Backend == nil || osCfg.Backend.Bucket == "" {
			return fmt.Errorf("objectstore provider requires a bucket")
		}
		if osCfg.Backend.Region == "" && osCfg.Backend.Endpoint == "" {
			return fmt.Errorf("objectstore provider requires a region or endpoint")
		}
	default:
		return fmt.Errorf("unknown provider type: %s", c.Provider.Type)
	}

	if c.Cache.MaxDurableBytes < 0 {
		return fmt.Errorf("cache max_durable_bytes cannot be negative")
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Configuration) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(c.Global.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log_level: %s (must be one of: DEBUG, INFO, WARN, ERROR)",
			c.Global.LogLevel)
	}
}

// ParseSize parses a human-readable size string like "512MB" or "2GB" into
// bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.factor
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value < 0 {
		return 0, fmt.Errorf("size cannot be negative")
	}
	return int64(value * float64(multiplier)), nil
}
