package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/Ning0612/treeblob/internal/checksum"
	"github.com/Ning0612/treeblob/internal/domain"
	"github.com/Ning0612/treeblob/internal/idmap"
	"github.com/Ning0612/treeblob/internal/logger"
)

// Config represents the complete configuration for treeblob
type Config struct {
	// Store selects the filesystem root exposed as a blob store
	Store StoreConfig `mapstructure:"store"`

	// Journal controls the move history database
	Journal JournalConfig `mapstructure:"journal"`

	// Logging controls log level, format and file rotation
	Logging LoggingConfig `mapstructure:"logging"`

	// GDrive holds OAuth client settings for gdrive:// roots
	GDrive GDriveConfig `mapstructure:"gdrive"`
}

// StoreConfig describes the store root
type StoreConfig struct {
	Root         string `mapstructure:"root"`
	Scheme       string `mapstructure:"scheme"`
	VerifyCopies bool   `mapstructure:"verify_copies"`
	Checksum     string `mapstructure:"checksum"`
}

// JournalConfig 搬移紀錄設定
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig 日誌設定
type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig 檔案日誌與 rotation 設定
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// GDriveConfig Google Drive OAuth 設定
type GDriveConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenPath    string `mapstructure:"token_path"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.Store.Root == "" {
		return fmt.Errorf("%w: store root cannot be empty", domain.ErrConfigInvalid)
	}
	u, err := url.Parse(c.Store.Root)
	if err != nil {
		return fmt.Errorf("%w: store root %q: %v", domain.ErrConfigInvalid, c.Store.Root, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: store root %q has no scheme", domain.ErrConfigInvalid, c.Store.Root)
	}
	if !idmap.ValidScheme(c.Store.Scheme) {
		return fmt.Errorf("%w: invalid blob id scheme: %q", domain.ErrConfigInvalid, c.Store.Scheme)
	}
	if c.Store.VerifyCopies && !checksum.IsSupported(checksum.Algorithm(c.Store.Checksum)) {
		return fmt.Errorf("%w: unsupported checksum algorithm: %s", domain.ErrConfigInvalid, c.Store.Checksum)
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("%w: journal enabled without a path", domain.ErrConfigInvalid)
	}

	if _, err := c.ToLoggerConfig(); err != nil {
		return err
	}

	if u.Scheme == "gdrive" && (c.GDrive.ClientID == "" || c.GDrive.ClientSecret == "") {
		return fmt.Errorf("%w: gdrive root requires gdrive.client_id and gdrive.client_secret", domain.ErrConfigInvalid)
	}

	return nil
}

// CopyChecksum returns the algorithm used to verify copied blobs, or ""
// when copies are only checked by size
func (c *Config) CopyChecksum() checksum.Algorithm {
	if !c.Store.VerifyCopies {
		return ""
	}
	return checksum.Algorithm(c.Store.Checksum)
}

// ToLoggerConfig converts the logging section to a logger.Config.
// Console output goes to stderr so command results on stdout stay clean.
func (c *Config) ToLoggerConfig() (logger.Config, error) {
	level, err := logger.ParseLevel(c.Logging.Level)
	if err != nil {
		return logger.Config{}, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	format, err := logger.ParseFormat(c.Logging.Format)
	if err != nil {
		return logger.Config{}, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg := logger.Config{Level: level, Format: format}
	if c.Logging.File.Enabled {
		if c.Logging.File.Path == "" {
			return logger.Config{}, fmt.Errorf("%w: log file enabled without a path", domain.ErrConfigInvalid)
		}
		cfg.File = &logger.FileConfig{
			Path:       c.Logging.File.Path,
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			MaxBackups: c.Logging.File.MaxBackups,
			Compress:   c.Logging.File.Compress,
		}
	}
	return cfg, nil
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	// ~user is left alone
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return filepath.Clean(os.ExpandEnv(path))
}
