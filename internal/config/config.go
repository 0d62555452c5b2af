// Package config provides configuration loading for harnessd.
package config

import (
	"fmt"
	"os"

	"github.com/fyrsmithlabs/harnessd/internal/chat"
	"github.com/fyrsmithlabs/harnessd/internal/harness"
	"github.com/fyrsmithlabs/harnessd/internal/logging"
	"github.com/fyrsmithlabs/harnessd/internal/memory"
	"github.com/fyrsmithlabs/harnessd/internal/provider"
	"github.com/fyrsmithlabs/harnessd/internal/telemetry"
)

// ProviderName selects the chat completion backend.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
)

// ProviderConfig configures the model provider.
type ProviderConfig struct {
	Name  ProviderName `koanf:"name"`
	Model string       `koanf:"model"`
	// APIKey falls back to ANTHROPIC_API_KEY or OPENAI_API_KEY when empty.
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	MaxTokens int    `koanf:"max_tokens"`
}

// ResolveAPIKey returns the configured key, falling back to the
// provider's conventional environment variable.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	switch p.Name {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// ChatConfig configures turn execution.
type ChatConfig struct {
	MaxToolRoundTrips int `koanf:"max_tool_round_trips"`
	// Temperature applies only when Set is true; zero is a valid value.
	Temperature    float64 `koanf:"temperature"`
	TemperatureSet bool    `koanf:"temperature_set"`
	MaxTokens      int     `koanf:"max_tokens"`
}

// Config is the root harnessd configuration.
type Config struct {
	Memory    memory.Config     `koanf:"memory"`
	Provider  ProviderConfig    `koanf:"provider"`
	Chat      ChatConfig        `koanf:"chat"`
	Policy    harness.RunPolicy `koanf:"policy"`
	Logging   logging.Config    `koanf:"logging"`
	Telemetry telemetry.Config  `koanf:"telemetry"`
	// SystemPrompt overrides the built-in harness system prompt.
	SystemPrompt string `koanf:"system_prompt"`
	// Workdir is where init plan and health check steps run.
	Workdir string `koanf:"workdir"`
}

// NewDefaultConfig returns a complete default configuration: in-memory
// state, Anthropic provider, strict incremental policy.
func NewDefaultConfig() *Config {
	return &Config{
		Memory:   memory.Config{Driver: memory.DriverInMemory},
		Provider: ProviderConfig{Name: ProviderAnthropic, MaxTokens: 4096},
		Chat: ChatConfig{
			MaxToolRoundTrips: chat.DefaultMaxToolRoundTrips,
			MaxTokens:         4096,
		},
		Policy:    harness.DefaultRunPolicy(),
		Logging:   logging.NewDefaultConfig(),
		Telemetry: telemetry.NewDefaultConfig(),
		Workdir:   ".",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// The model is deliberately not required here; commands that never
	// talk to a provider (status) load the same config.
	switch c.Provider.Name {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	if c.Provider.MaxTokens < 0 {
		return fmt.Errorf("provider max_tokens cannot be negative")
	}
	if c.Chat.MaxToolRoundTrips < 0 {
		return fmt.Errorf("chat max_tool_round_trips cannot be negative")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	switch c.Memory.Driver {
	case memory.DriverInMemory, memory.DriverFilesystem, memory.DriverSQLite, "":
	default:
		return fmt.Errorf("unknown memory driver %q", c.Memory.Driver)
	}
	if (c.Memory.Driver == memory.DriverFilesystem || c.Memory.Driver == memory.DriverSQLite) && c.Memory.Path == "" {
		return fmt.Errorf("memory driver %q requires a path", c.Memory.Driver)
	}
	return nil
}

// ChatSettings maps the config section onto chat.Config.
func (c *Config) ChatSettings() chat.Config {
	cfg := chat.Config{
		MaxToolRoundTrips: c.Chat.MaxToolRoundTrips,
		DefaultMaxTokens:  c.Chat.MaxTokens,
	}
	if c.Chat.TemperatureSet {
		temp := c.Chat.Temperature
		cfg.DefaultTemperature = &temp
	}
	return cfg
}

// BuildProvider constructs the configured model provider.
func (c *Config) BuildProvider(hooks provider.OperationHooks) (provider.Provider, error) {
	key := c.Provider.ResolveAPIKey()
	switch c.Provider.Name {
	case ProviderAnthropic:
		return provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:  key,
			BaseURL: c.Provider.BaseURL,
		}, hooks)
	case ProviderOpenAI:
		return provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  key,
			BaseURL: c.Provider.BaseURL,
		}, hooks)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
}
