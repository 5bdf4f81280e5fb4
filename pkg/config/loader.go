package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

// Environment overrides.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvListen   = "LLMVC_LISTEN"
	EnvLogLevel = "LOG_LEVEL"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with the environment value.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		return []byte(os.Getenv(string(match[2 : len(match)-1])))
	})
}

// Load reads the configuration file at filename. A .env file next to it is
// loaded first; variables already set in the environment win. An empty
// filename yields the defaults with environment overrides applied.
func Load(filename string) (*Config, error) {
	cfg := Defaults()
	if filename == "" {
		if err := loadDotEnv("."); err != nil {
			return nil, err
		}
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}

	if err := loadDotEnv(filepath.Dir(filename)); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.parse(data); err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "path", filename)
	return cfg, nil
}

// Parse decodes configuration data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := cfg.parse(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	data = expandEnvVars(data)
	if err := ValidateSchema(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.applyEnv()
	return c.Validate()
}

func loadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env: %w", err)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" && c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}
