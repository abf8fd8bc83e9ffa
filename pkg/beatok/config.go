package beatok

import (
	"github.com/beatok/backend/internal/filestore"
	"github.com/beatok/backend/internal/fingerprint"
)

type Config struct {
	DBPath        string
	StorageDir    string
	Scheme        fingerprint.Scheme
	Threshold     float64
	RescanWorkers int
	Logger        Logger
	Storage       Storage
	FileStore     filestore.FileStore
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithStorageDir roots the default local file store at dir.
func WithStorageDir(dir string) Option {
	return func(c *Config) {
		c.StorageDir = dir
	}
}

func WithScheme(s fingerprint.Scheme) Option {
	return func(c *Config) {
		c.Scheme = s
	}
}

// WithThreshold sets the similarity at or above which an upload is
// rejected as a duplicate.
func WithThreshold(t float64) Option {
	return func(c *Config) {
		c.Threshold = t
	}
}

func WithRescanWorkers(n int) Option {
	return func(c *Config) {
		c.RescanWorkers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithFileStore(fs filestore.FileStore) Option {
	return func(c *Config) {
		c.FileStore = fs
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:        "beatok.sqlite3",
		StorageDir:    "uploads",
		Scheme:        fingerprint.Default(),
		Threshold:     fingerprint.DefaultThreshold,
		RescanWorkers: 4,
		Logger:        nil,
	}
}
