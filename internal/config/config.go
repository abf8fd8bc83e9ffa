// Package config loads the beatok server and CLI configuration from a TOML
// file, with BEATOK_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/beatok/backend/internal/fingerprint"
	"github.com/beatok/backend/pkg/logger"
)

const DefaultPath = "beatok.toml"

// Config represents the main configuration for beatok.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Fingerprint FingerprintConfig `toml:"fingerprint"`
	Log         LogConfig         `toml:"log"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int64    `toml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// StorageConfig selects the file store for uploaded audio.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "local" or "s3"

	// Local-specific fields (only used when Type == "local")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"` // MinIO, R2, ...
	S3AccessKey    string `toml:"s3_access_key,omitempty"`
	S3SecretKey    string `toml:"s3_secret_key,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty"`
}

type FingerprintConfig struct {
	Scheme    string  `toml:"scheme"`
	Threshold float64 `toml:"threshold"`
	// Workers bounds concurrent extractions during a rescan.
	Workers int `toml:"workers"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    200,
		},
		Database: DatabaseConfig{Path: "beatok.sqlite3"},
		Storage:  StorageConfig{Type: "local", Dir: "uploads"},
		Fingerprint: FingerprintConfig{
			Scheme:    fingerprint.Method64x16,
			Threshold: fingerprint.DefaultThreshold,
			Workers:   4,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BEATOK_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("BEATOK_DB_PATH", &c.Database.Path)
	setString("BEATOK_STORAGE_TYPE", &c.Storage.Type)
	setString("BEATOK_STORAGE_DIR", &c.Storage.Dir)
	setString("BEATOK_S3_BUCKET", &c.Storage.S3Bucket)
	setString("BEATOK_S3_PREFIX", &c.Storage.S3Prefix)
	setString("BEATOK_S3_REGION", &c.Storage.S3Region)
	setString("BEATOK_S3_ENDPOINT", &c.Storage.S3Endpoint)
	setString("BEATOK_S3_ACCESS_KEY", &c.Storage.S3AccessKey)
	setString("BEATOK_S3_SECRET_KEY", &c.Storage.S3SecretKey)
	setString("BEATOK_FINGERPRINT_SCHEME", &c.Fingerprint.Scheme)
	setString("LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("BEATOK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BEATOK_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("BEATOK_DUPLICATE_THRESHOLD"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BEATOK_DUPLICATE_THRESHOLD: %w", err)
		}
		c.Fingerprint.Threshold = th
	}
	if v := os.Getenv("BEATOK_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.Server.AllowedOrigins = origins
	}
	return nil
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, ok := fingerprint.Lookup(c.Fingerprint.Scheme); !ok {
		return fmt.Errorf("unknown fingerprint scheme %q", c.Fingerprint.Scheme)
	}
	if c.Fingerprint.Threshold <= 0 || c.Fingerprint.Threshold > 1 {
		return fmt.Errorf("duplicate threshold must be in (0, 1], got %v", c.Fingerprint.Threshold)
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.Dir == "" {
			return errors.New("local storage requires dir to be set")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("s3 storage requires s3_bucket to be set")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	return nil
}

// LogLevel returns the configured level, INFO when unset.
func (c *Config) LogLevel() logger.LogLevel {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}
