package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the single configuration file format for conclave.jsonc
type Config struct {
	Server    ServerSection    `json:"server"`
	Providers ProvidersSection `json:"providers"`
	Pool      PoolSection      `json:"pool"`
	Agents    AgentsSection    `json:"agents"`
	DataDir   string           `json:"data_dir"`
	DebugDir  string           `json:"debug_dir"` // When set, agents write step traces here
}

// ServerSection contains server configuration
type ServerSection struct {
	Address string `json:"address"`
}

// ProvidersSection contains credentials and model selection per provider
type ProvidersSection struct {
	Default   string         `json:"default"` // openai, anthropic, glm
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	GLM       ProviderConfig `json:"glm"`
}

// ProviderConfig is the credential and model for a single provider
type ProviderConfig struct {
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// PoolSection bounds concurrent sessions
type PoolSection struct {
	MaxRunners     int    `json:"max_runners"`
	IdleTimeout    string `json:"idle_timeout"` // Go duration string, e.g. "30m"
	EventBufferLen int    `json:"event_buffer_len"`
}

// AgentsSection contains per-session agent defaults
type AgentsSection struct {
	MaxSteps int `json:"max_steps"`
}

// Default returns the built-in configuration values
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Address: ":8080",
		},
		Providers: ProvidersSection{
			Default:   "anthropic",
			OpenAI:    ProviderConfig{Model: "gpt-4o"},
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-20250514"},
			GLM:       ProviderConfig{Model: "glm-4-plus"},
		},
		Pool: PoolSection{
			MaxRunners:     10,
			IdleTimeout:    "30m",
			EventBufferLen: 1000,
		},
		Agents: AgentsSection{
			MaxSteps: 50,
		},
		DataDir: "data",
	}
}

// FindConfigPath returns the path to conclave.jsonc using precedence:
// 1. configDir + /conclave.jsonc (if configDir specified)
// 2. ./config/conclave.jsonc (project-local)
// 3. ~/.conclave/config/conclave.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "conclave.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("conclave.jsonc not found in %s", configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", "conclave.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".conclave", "config", "conclave.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("conclave.jsonc not found; tried: %v", candidates)
}

// Load reads and parses conclave.jsonc from the given path.
// Missing fields fall back to defaults, and API keys fall back to
// environment variables.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	jsonData := StripJSONComments(data)

	cfg := Default()
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from configDir, or returns defaults
// plus environment overrides when no config file exists
func LoadOrDefault(configDir string) (*Config, error) {
	path, err := FindConfigPath(configDir)
	if err != nil {
		cfg := Default()
		cfg.applyEnvOverrides()
		if verr := cfg.Validate(); verr != nil {
			return nil, verr
		}
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyEnvOverrides() {
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Anthropic.APIKey == "" {
		c.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Providers.GLM.APIKey == "" {
		c.Providers.GLM.APIKey = os.Getenv("GLM_API_KEY")
	}
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	switch c.Providers.Default {
	case "openai", "anthropic", "glm":
	default:
		return fmt.Errorf("unknown default provider %q (want openai, anthropic, or glm)", c.Providers.Default)
	}

	if c.Pool.MaxRunners <= 0 {
		return fmt.Errorf("pool.max_runners must be positive, got %d", c.Pool.MaxRunners)
	}
	if c.Agents.MaxSteps <= 0 {
		return fmt.Errorf("agents.max_steps must be positive, got %d", c.Agents.MaxSteps)
	}
	if _, err := c.IdleTimeout(); err != nil {
		return err
	}
	return nil
}

// DefaultProviderConfig returns the config block for the default provider
func (c *Config) DefaultProviderConfig() ProviderConfig {
	switch c.Providers.Default {
	case "openai":
		return c.Providers.OpenAI
	case "glm":
		return c.Providers.GLM
	default:
		return c.Providers.Anthropic
	}
}

// IdleTimeout parses the pool idle timeout duration
func (c *Config) IdleTimeout() (time.Duration, error) {
	if c.Pool.IdleTimeout == "" {
		return 30 * time.Minute, nil
	}
	d, err := time.ParseDuration(c.Pool.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid pool.idle_timeout %q: %w", c.Pool.IdleTimeout, err)
	}
	return d, nil
}
