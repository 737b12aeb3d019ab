// Package config builds the immutable runtime configuration of the file
// service. Values are layered: profile defaults, then an optional TOML or
// YAML file, then FLATFS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	ProfileDefault = "default"
	ProfileTest    = "test"
)

// Config holds all runtime configuration for the file service.
// It is built once by Load and passed by value; nothing mutates it afterwards.
type Config struct {
	Host        string   `toml:"host" yaml:"host"`
	Port        string   `toml:"port" yaml:"port"`
	PublicDir   string   `toml:"public_dir" yaml:"public_dir"`
	FilesDir    string   `toml:"files_dir" yaml:"files_dir"`
	MaxFileSize ByteSize `toml:"max_file_size" yaml:"max_file_size"`

	// FixturesDir is only set by the test profile.
	FixturesDir string `toml:"fixtures_dir,omitempty" yaml:"fixtures_dir,omitempty"`

	LogLevel             string   `toml:"log_level" yaml:"log_level"`
	MaxConcurrentUploads int      `toml:"max_concurrent_uploads" yaml:"max_concurrent_uploads"`
	MinFreeBytes         ByteSize `toml:"min_free_bytes" yaml:"min_free_bytes"`
}

// Addr is the listen address in host:port form.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Defaults returns the built-in values for profile, with directories
// resolved against the working directory wd.
func Defaults(profile, wd string) (Config, error) {
	cfg := Config{
		Host:                 "127.0.0.1",
		Port:                 "3000",
		PublicDir:            filepath.Join(wd, "public"),
		FilesDir:             filepath.Join(wd, "files"),
		MaxFileSize:          1e6,
		LogLevel:             "info",
		MaxConcurrentUploads: 256,
		MinFreeBytes:         64 << 20,
	}
	switch profile {
	case "", ProfileDefault:
	case ProfileTest:
		cfg.Port = "3001"
		cfg.MaxFileSize = 0.1e6
		cfg.FixturesDir = filepath.Join(wd, "test", "fixtures")
		cfg.LogLevel = "warn"
	default:
		return Config{}, fmt.Errorf("unknown profile %q", profile)
	}
	return cfg, nil
}

// Load resolves the configuration for profile. path may be empty; otherwise
// it names a .toml, .yaml or .yml file whose keys override the profile.
// An empty profile falls back to $FLATFS_ENV and then to "default".
func Load(profile, path string) (Config, error) {
	if profile == "" {
		profile = os.Getenv("FLATFS_ENV")
	}
	wd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := Defaults(profile, wd)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Host = getEnv("FLATFS_HOST", cfg.Host)
	cfg.Port = getEnv("FLATFS_PORT", cfg.Port)
	cfg.PublicDir = getEnv("FLATFS_PUBLIC_DIR", cfg.PublicDir)
	cfg.FilesDir = getEnv("FLATFS_FILES_DIR", cfg.FilesDir)
	cfg.LogLevel = getEnv("FLATFS_LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("FLATFS_MAX_FILE_SIZE"); v != "" {
		if err := cfg.MaxFileSize.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("FLATFS_MAX_FILE_SIZE: %w", err)
		}
	}
	if v := os.Getenv("FLATFS_MAX_CONCURRENT_UPLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLATFS_MAX_CONCURRENT_UPLOADS: %w", err)
		}
		cfg.MaxConcurrentUploads = n
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate reports the first problem that would stop the server from starting.
func (c Config) Validate() error {
	if c.PublicDir == "" {
		return errors.New("public_dir must be set")
	}
	if c.FilesDir == "" {
		return errors.New("files_dir must be set")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// ByteSize is a size in bytes that decodes from either a plain integer or a
// humanized string such as "1 MB" or "100KiB".
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler (used by TOML and env).
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText renders the size as a plain byte count so it round-trips.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(b), 10)), nil
}

// UnmarshalYAML accepts both integer and string scalars.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	return b.UnmarshalText([]byte(value.Value))
}

func (b ByteSize) String() string {
	return humanize.Bytes(uint64(b))
}
