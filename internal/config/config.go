package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidRevealTime     = errors.New("invalid reveal time")
)

// CurrentVersion of the config file layout.
const CurrentVersion = 1

// FileName is looked up in each search path.
const FileName = "capsule.toml"

// EnvPrefix marks environment overrides; CAPSULE_STORE__DRIVER sets store.driver.
const EnvPrefix = "CAPSULE_"

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version int     `koanf:"version"`
	Reveal  Reveal  `koanf:"reveal"`
	Store   Store   `koanf:"store"`
	Storage Storage `koanf:"storage"`
	Server  Server  `koanf:"server"`
	Admin   Admin   `koanf:"admin"`
	Debug   Debug   `koanf:"debug"`
}

// Reveal describes the capsule itself.
type Reveal struct {
	// Title shown at the top of the page.
	Title string `koanf:"title"`
	// Reveal instant, RFC 3339 with offset.
	At string `koanf:"at"`
	// Zone used for every displayed date.
	Timezone string `koanf:"timezone"`
	// External submission form.
	FormURL string `koanf:"form_url"`
}

// Time parses the reveal instant.
func (r Reveal) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(r.At))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidRevealTime, err)
	}
	return t, nil
}

// Store selects and configures the remote entry store.
type Store struct {
	// One of firebase, redis, postgres, sqlite, static.
	Driver string `koanf:"driver"`
	// Logical data path of the entries.
	Path string `koanf:"path"`
	// JSON export read by the static driver.
	File     string   `koanf:"file"`
	Firebase Firebase `koanf:"firebase"`
	Redis    Redis    `koanf:"redis"`
	SQL      SQL      `koanf:"sql"`
}

type Firebase struct {
	// Realtime Database URL, e.g. https://project-default-rtdb.firebaseio.com
	DatabaseURL string `koanf:"database_url"`
	// Database secret or ID token passed as the auth parameter.
	AuthToken string `koanf:"auth_token"`
}

type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Addr returns host:port or "" when no host is configured.
func (r Redis) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type SQL struct {
	// Connection string; for postgres also used for LISTEN.
	DSN string `koanf:"dsn"`
}

// Storage configures attachment URL presigning.
type Storage struct {
	S3 S3 `koanf:"s3"`
}

type S3 struct {
	Enabled         bool   `koanf:"enabled"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	// Presigned link lifetime in seconds.
	PresignExpiry int `koanf:"presign_expiry"`
}

type Server struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// Shutdown grace period in seconds.
	ShutdownTimeout int `koanf:"shutdown_timeout"`
}

func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Admin guards the force-open action.
type Admin struct {
	// Bearer token; empty disables the action.
	Token string `koanf:"token"`
}

type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Log directory; empty logs to stderr.
	LogDir string `koanf:"log_dir"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"reveal.title":              "Batch 2025 Digital Time Capsule",
		"reveal.at":                 "2028-05-01T09:00:00+08:00",
		"reveal.timezone":           "Asia/Manila",
		"store.driver":              "firebase",
		"store.path":                "/capsuleEntries",
		"store.redis.port":          6379,
		"storage.s3.region":         "us-east-1",
		"storage.s3.presign_expiry": 900,
		"server.host":               "0.0.0.0",
		"server.port":               8081,
		"server.shutdown_timeout":   30,
		"debug.log_level":           "info",
		"debug.max_logs_to_keep":    10,
	}
}

// SearchPaths lists the directories checked for capsule.toml, in order.
func SearchPaths() []string {
	paths := []string{".", "config"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".capsule"))
	}
	return append(paths, "/etc/capsule")
}

// LoadConfig reads defaults, then the config file, then environment
// overrides. An explicit path must exist; otherwise the search paths are
// tried and running on defaults is allowed. Returns the file used, if any.
func LoadConfig(path string) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("error loading defaults: %w", err)
	}

	usedPath, err := loadFile(k, path)
	if err != nil {
		return nil, "", err
	}
	if usedPath == "" {
		// running on defaults alone
		if err := k.Set("version", CurrentVersion); err != nil {
			return nil, "", err
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, "", fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version); err != nil {
		return nil, "", err
	}
	if _, err := config.Reveal.Time(); err != nil {
		return nil, "", err
	}

	return &config, usedPath, nil
}

func loadFile(k *koanf.Koanf, path string) (string, error) {
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrConfigFileNotFound, path, err)
		}
		return path, nil
	}
	for _, dir := range SearchPaths() {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := k.Load(file.Provider(candidate), toml.Parser()); err != nil {
			return "", fmt.Errorf("error loading %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s", ErrConfigVersionMissing, FileName)
	}
	if current != CurrentVersion {
		return fmt.Errorf("%w: %s (got: %d, expected: %d)",
			ErrConfigVersionMismatch, FileName, current, CurrentVersion)
	}
	return nil
}
