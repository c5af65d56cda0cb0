package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const databaseURLScheme = "sqlite://"

type Config struct {
	DataDir        string
	FilesDir       string
	DatabaseURL    string
	IndexPath      string
	OIDCConfigPath string

	ListenAddress  string
	ListenPort     int
	BaseURL        string
	BaseBackendURL string
	CORS           bool
	StaticDir      string

	TokenValidity   time.Duration
	UploadLimitMB   int
	DefaultPageSize int

	DatabaseDebug             bool
	DatabaseBusyTimeout       time.Duration
	DatabaseMaxRetries        int
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration

	EbookMetaBin    string
	EbookConvertBin string
	SofficeBin      string

	Hostname string
}

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Config{
		DataDir:                   filepath.Join(home, ".mbs4"),
		ListenAddress:             "127.0.0.1",
		ListenPort:                3000,
		TokenValidity:             24 * time.Hour,
		UploadLimitMB:             100,
		DefaultPageSize:           100,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseMaxRetries:        3,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		EbookMetaBin:              "ebook-meta",
		EbookConvertBin:           "ebook-convert",
		SofficeBin:                "soffice",
		Hostname:                  hostname,
	}, nil
}

// NewForTest returns a config pointing at throwaway paths with snappy
// timeouts so tests fail fast instead of waiting out production delays.
func NewForTest() *Config {
	return &Config{
		ListenAddress:             "127.0.0.1",
		TokenValidity:             time.Hour,
		UploadLimitMB:             10,
		DefaultPageSize:           100,
		DatabaseBusyTimeout:       time.Millisecond,
		DatabaseMaxRetries:        3,
		DatabaseConnectRetryCount: 1,
		DatabaseConnectRetryDelay: 10 * time.Millisecond,
		EbookMetaBin:              "ebook-meta",
		EbookConvertBin:           "ebook-convert",
		SofficeBin:                "soffice",
		Hostname:                  "test",
	}
}

// Normalize fills in the defaults that derive from DataDir. It should be
// called once after CLI flags have been applied.
func (cfg *Config) Normalize() error {
	if cfg.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if cfg.FilesDir == "" {
		cfg.FilesDir = filepath.Join(cfg.DataDir, "ebooks")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = databaseURLScheme + filepath.Join(cfg.DataDir, "mbs4.db")
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.DataDir, "mbs4-ft-idx.db")
	}
	if cfg.BaseBackendURL == "" {
		cfg.BaseBackendURL = cfg.BaseURL
	}
	return nil
}

// DatabaseFile extracts the on-disk path from the sqlite:// database URL.
func (cfg *Config) DatabaseFile() (string, error) {
	path, ok := strings.CutPrefix(cfg.DatabaseURL, databaseURLScheme)
	if !ok || path == "" {
		return "", errors.Errorf("unsupported database url: %s", cfg.DatabaseURL)
	}
	return path, nil
}

// SecretFile is where the HMAC signing key for API tokens lives.
func (cfg *Config) SecretFile() string {
	return filepath.Join(cfg.DataDir, "secret")
}
