package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvBaseURL      = "GUARDCHAT_BASE_URL"
	EnvAPIKey       = "GUARDCHAT_API_KEY"
	EnvModel        = "GUARDCHAT_MODEL"
	EnvLogLevel     = "GUARDCHAT_LOG_LEVEL"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const (
	// DefaultFile is the client settings file picked up from the working directory
	DefaultFile = "guardchat.yaml"
	// DefaultLogLevel keeps chat output free of diagnostics
	DefaultLogLevel = "warn"
)

// RequiredChatEnv lists the provider keys the gateway needs to serve chat
var RequiredChatEnv = []string{"OPENAI_API_KEY", "LAKERA_API_KEY"}

// Config holds the client settings
type Config struct {
	// BaseURL is the gateway address
	BaseURL string `yaml:"base_url"`

	// APIKey is sent to the gateway as a bearer token
	APIKey string `yaml:"api_key"`

	// Model is the default model alias
	Model string `yaml:"model"`

	// ProxyConfig is the gateway settings file
	ProxyConfig string `yaml:"proxy_config"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// OTLPEndpoint enables tracing when set
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns the built-in settings
func Defaults() Config {
	return Config{
		BaseURL:     "http://localhost:4000",
		APIKey:      "dummy-key",
		Model:       "gpt-3.5-turbo",
		ProxyConfig: "config.yaml",
		LogLevel:    DefaultLogLevel,
	}
}

// LoadDotEnv loads variables from .env files without overriding ones
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves settings from defaults, then the settings file, then the
// environment. An empty path reads DefaultFile when it exists; an explicit
// path must exist.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	if _, err := os.Stat(path); err == nil {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = merge(cfg, fileCfg)
	} else if explicit {
		return cfg, fmt.Errorf("settings file %s: %w", path, err)
	}

	cfg = merge(cfg, FromEnv())
	return cfg, nil
}

// LoadFile reads a YAML settings file
func LoadFile(path string) (Config, error) {
	if !isValidFilePath(path) {
		return Config{}, fmt.Errorf("invalid file path: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		return Config{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return cfg, nil
}

// FromEnv reads the settings present in the environment
func FromEnv() Config {
	return Config{
		BaseURL:      os.Getenv(EnvBaseURL),
		APIKey:       os.Getenv(EnvAPIKey),
		Model:        os.Getenv(EnvModel),
		LogLevel:     strings.ToLower(os.Getenv(EnvLogLevel)),
		OTLPEndpoint: os.Getenv(EnvOTLPEndpoint),
	}
}

// merge overlays the non-empty fields of override onto base
func merge(base, override Config) Config {
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.ProxyConfig != "" {
		base.ProxyConfig = override.ProxyConfig
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.OTLPEndpoint != "" {
		base.OTLPEndpoint = override.OTLPEndpoint
	}
	return base
}

// MissingEnv returns the names that are unset or empty, in order
func MissingEnv(names ...string) []string {
	var missing []string
	for _, name := range names {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// isValidFilePath checks if a file path is valid and safe
func isValidFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	cleanPath := filepath.Clean(filePath)

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return false
	}

	// pseudo filesystems could disclose sensitive information
	if strings.HasPrefix(absPath, "/proc") ||
		strings.HasPrefix(absPath, "/sys") ||
		strings.HasPrefix(absPath, "/dev") {
		return false
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return false
	}

	return fileInfo.Mode().IsRegular()
}
