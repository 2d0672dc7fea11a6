// Package config handles loading and persisting user configuration
// for llmchat. Configuration is stored in ~/.llmchat/config.json and
// overridden by environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/arin/llmchat/internal/provider"
)

const (
	dirName  = ".llmchat"
	fileName = "config.json"

	DefaultSystemPrompt     = "You are a helpful assistant running in a command-line interface."
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 3000
	DefaultTopP             = 0.9
	DefaultMaxHistory       = 20
	DefaultMaxMessageLength = 50000
	DefaultRequestTimeout   = 300
	DefaultModelsTimeout    = 30

	envTemperature  = "LLMCHAT_TEMPERATURE"
	envMaxTokens    = "LLMCHAT_MAX_TOKENS"
	envTopP         = "LLMCHAT_TOP_P"
	envMaxHistory   = "LLMCHAT_MAX_HISTORY"
	envSystemPrompt = "LLMCHAT_SYSTEM_PROMPT"
	envOllamaHost   = "OLLAMA_HOST"
)

// ErrOutOfRange is returned when a tunable is outside its accepted range.
var ErrOutOfRange = errors.New("value out of range")

// Config holds the user's configuration.
type Config struct {
	APIKeys   map[string]string `json:"api_keys,omitempty"`
	Models    map[string]string `json:"models,omitempty"`
	Endpoints map[string]string `json:"endpoints,omitempty"`

	SystemPrompt     string  `json:"system_prompt"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	MaxHistory       int     `json:"max_history"`
	MaxMessageLength int     `json:"max_message_length"`
	ShowThinking     bool    `json:"show_thinking"`
	Tools            bool    `json:"tools"`
	// RequestTimeout bounds the wait for response headers, in seconds.
	RequestTimeout int `json:"request_timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIKeys:          map[string]string{},
		Models:           map[string]string{},
		Endpoints:        map[string]string{},
		SystemPrompt:     DefaultSystemPrompt,
		Temperature:      DefaultTemperature,
		MaxTokens:        DefaultMaxTokens,
		TopP:             DefaultTopP,
		MaxHistory:       DefaultMaxHistory,
		MaxMessageLength: DefaultMaxMessageLength,
		ShowThinking:     true,
		RequestTimeout:   DefaultRequestTimeout,
	}
}

// Dir returns the configuration directory path.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

// Path returns the configuration file path.
func Path() string {
	return filepath.Join(Dir(), fileName)
}

// Load reads the configuration from disk and environment variables and
// validates it. A missing file is not an error.
func Load() (*Config, error) {
	cfg, err := readFile()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile() (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", Path(), err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", Path(), err)
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	if cfg.Models == nil {
		cfg.Models = map[string]string{}
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = map[string]string{}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	for _, name := range provider.Names() {
		if key := os.Getenv(provider.KeyEnv(name)); key != "" {
			c.APIKeys[name] = key
		}
	}
	if host := os.Getenv(envOllamaHost); host != "" {
		c.Endpoints["ollama"] = host
	}
	if prompt := os.Getenv(envSystemPrompt); prompt != "" {
		c.SystemPrompt = prompt
	}

	if v := os.Getenv(envTemperature); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envTemperature, err)
		}
		c.Temperature = f
	}
	if v := os.Getenv(envTopP); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envTopP, err)
		}
		c.TopP = f
	}
	if v := os.Getenv(envMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxTokens, err)
		}
		c.MaxTokens = n
	}
	if v := os.Getenv(envMaxHistory); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxHistory, err)
		}
		c.MaxHistory = n
	}
	return nil
}

// Validate checks every tunable against its accepted range.
func (c *Config) Validate() error {
	switch {
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature %g must be between 0 and 2", ErrOutOfRange, c.Temperature)
	case c.TopP < 0 || c.TopP > 1:
		return fmt.Errorf("%w: top_p %g must be between 0 and 1", ErrOutOfRange, c.TopP)
	case c.MaxTokens < 1 || c.MaxTokens > 1_000_000:
		return fmt.Errorf("%w: max_tokens %d must be between 1 and 1000000", ErrOutOfRange, c.MaxTokens)
	case c.MaxHistory < 2:
		return fmt.Errorf("%w: max_history %d must be at least 2", ErrOutOfRange, c.MaxHistory)
	case c.MaxMessageLength < 1:
		return fmt.Errorf("%w: max_message_length %d must be positive", ErrOutOfRange, c.MaxMessageLength)
	case c.RequestTimeout < 1:
		return fmt.Errorf("%w: request_timeout_seconds %d must be positive", ErrOutOfRange, c.RequestTimeout)
	}
	return nil
}

// APIKey returns the key configured for a provider.
func (c *Config) APIKey(name string) string { return c.APIKeys[name] }

// Model returns the default model configured for a provider, if any.
func (c *Config) Model(name string) string { return c.Models[name] }

// Endpoint returns the API root override for a provider, if any.
func (c *Config) Endpoint(name string) string { return c.Endpoints[name] }

// Timeout returns RequestTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// save persists the config to disk.
func save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(Path(), data, 0o600)
}

// update applies fn to the on-disk configuration, ignoring environment
// overrides so they are never written back.
func update(fn func(*Config)) error {
	cfg, err := readFile()
	if err != nil {
		return err
	}
	fn(cfg)
	return save(cfg)
}

// SetAPIKey saves the API key for a provider to the config file.
func SetAPIKey(name, key string) error {
	if _, err := provider.New(name, provider.Options{}); err != nil {
		return err
	}
	return update(func(c *Config) { c.APIKeys[name] = key })
}

// SetModel saves the default model for a provider to the config file.
func SetModel(name, model string) error {
	if _, err := provider.New(name, provider.Options{}); err != nil {
		return err
	}
	return update(func(c *Config) { c.Models[name] = model })
}

// SetSystemPrompt saves the system prompt to the config file.
func SetSystemPrompt(prompt string) error {
	return update(func(c *Config) { c.SystemPrompt = prompt })
}

// MaskKey hides all but the edges of a key for display.
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
