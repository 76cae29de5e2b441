package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	dataDirEnv   = "RESONATE_DATA_DIR"
	apiKeyEnv    = "RESONATE_API_KEY"
	geminiKeyEnv = "GEMINI_API_KEY"
	bindEnv      = "RESONATE_BIND"
	logLevelEnv  = "RESONATE_LOG_LEVEL"
)

// Config holds all application settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port string the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// StorageConfig describes where the database and media files live.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// ReasoningConfig defines how to reach the multimodal reasoning service.
type ReasoningConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"apiKey"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

// ResolverConfig tunes outbound article and image fetching.
type ResolverConfig struct {
	UserAgent string `yaml:"userAgent"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server:  ServerConfig{Bind: "127.0.0.1", Port: 8787},
		Storage: StorageConfig{DataDir: filepath.Join(home, ".resonate")},
		Reasoning: ReasoningConfig{
			Endpoint:          "https://generativelanguage.googleapis.com/v1beta/models",
			Model:             "gemini-2.0-flash",
			RequestsPerSecond: 1,
		},
		Resolver: ResolverConfig{UserAgent: "resonate/1.0"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads YAML configuration from path and applies environment overrides.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(raw, cfg); uerr != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, uerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Reasoning.APIKey = v
	} else if v := os.Getenv(geminiKeyEnv); v != "" && c.Reasoning.APIKey == "" {
		c.Reasoning.APIKey = v
	}
	if v := os.Getenv(bindEnv); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}
