package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/Ning0612/treeblob/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. TREEBLOB_STORE_ROOT
const EnvPrefix = "TREEBLOB"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "treeblob"))
	}

	// Add home directory
	if homeDir, err := homedir.Dir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "treeblob"))
		paths = append(paths, filepath.Join(homeDir, ".treeblob"))
	}

	return paths
}

// DefaultDataDir returns the directory holding the journal and log files
func DefaultDataDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "treeblob")
	}
	return ".treeblob"
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.scheme", "blob")
	v.SetDefault("store.verify_copies", true)
	v.SetDefault("store.checksum", "md5")
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", filepath.Join(DefaultDataDir(), "journal.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", filepath.Join(DefaultDataDir(), "treeblob.log"))
	v.SetDefault("logging.file.max_size_mb", 10)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("gdrive.client_id", "")
	v.SetDefault("gdrive.client_secret", "")
	v.SetDefault("gdrive.token_path", "")
	// AutomaticEnv 只對已知 key 生效
	v.SetDefault("store.root", "")
	return v
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml
func Load(path string) (*Config, error) {
	v := newViper()
	if err := readInto(v, path); err != nil {
		return nil, err
	}
	return decode(v)
}

// Resolve loads the configuration a command asks for: path when given,
// otherwise the first config.yaml on the search path, otherwise defaults.
// A non-empty root overrides store.root. The result is not validated so
// commands that do not touch the store can still run.
func Resolve(path, root string) (*Config, error) {
	v := newViper()
	if err := readInto(v, path); err != nil {
		if path != "" || !errors.Is(err, domain.ErrConfigNotFound) {
			return nil, err
		}
	}
	if root != "" {
		v.Set("store.root", root)
	}
	return unmarshal(v)
}

func readInto(v *viper.Viper, path string) error {
	if path != "" {
		// Use specific file
		v.SetConfigFile(ExpandPath(path))
	} else {
		// Search default paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %v", domain.ErrConfigNotFound, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return nil
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.Store.Scheme = strings.TrimSuffix(cfg.Store.Scheme, ":")
	cfg.Store.Checksum = strings.ToLower(cfg.Store.Checksum)
	cfg.Journal.Path = ExpandPath(cfg.Journal.Path)
	cfg.Logging.File.Path = ExpandPath(cfg.Logging.File.Path)
	cfg.GDrive.TokenPath = ExpandPath(cfg.GDrive.TokenPath)

	return &cfg, nil
}
