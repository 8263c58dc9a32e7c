package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	ALSSeedKey      string
	Gateway         *GatewayConfig
	ConfigDir       string
}

// FileConfig represents the structure of ~/.geogate/config.yaml
type FileConfig struct {
	APIKeys APIKeysConfig `yaml:"api_keys"`
	ALS     ALSKeyConfig  `yaml:"als"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
}

// ALSKeyConfig holds the locale-block seed key material from file. The
// seed key participates in variant selection only; it is never logged.
type ALSKeyConfig struct {
	SeedKey string `yaml:"seed_key"`
}

// Load reads configuration from config files and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	// Load file config first
	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	// Build config with env vars taking precedence over file
	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		ALSSeedKey:      getEnvOrDefault("GEOGATE_ALS_SEED_KEY", fileConfig.ALS.SeedKey),
		ConfigDir:       configDir,
	}

	// Load gateway config
	gatewayPath := filepath.Join(configDir, "gateway.yaml")
	if _, err := os.Stat(gatewayPath); err == nil {
		gateway, err := LoadGatewayConfig(gatewayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load gateway config: %w", err)
		}
		cfg.Gateway = gateway
	} else {
		cfg.Gateway = DefaultGatewayConfig()
	}

	return cfg, nil
}

// LoadWithGatewayFile loads config with a specific gateway file.
func LoadWithGatewayFile(gatewayPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		ALSSeedKey:      getEnvOrDefault("GEOGATE_ALS_SEED_KEY", fileConfig.ALS.SeedKey),
		ConfigDir:       configDir,
	}

	gateway, err := LoadGatewayConfig(gatewayPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway config from %s: %w", gatewayPath, err)
	}
	cfg.Gateway = gateway

	return cfg, nil
}

// HasVendor returns true if the API key for the given vendor is configured.
func (c *Config) HasVendor(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg // Return empty config if file doesn't exist
	}

	_ = yaml.Unmarshal(data, cfg) // Ignore parse errors, use defaults
	return cfg
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".geogate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
