package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/harnessd/internal/harness"
	"github.com/fyrsmithlabs/harnessd/internal/memory"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, memory.DriverInMemory, cfg.Memory.Driver)
	assert.Equal(t, ProviderAnthropic, cfg.Provider.Name)
	assert.Equal(t, harness.StrictIncremental, cfg.Policy.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)

	// Defaults validate as-is; the missing model is only enforced when a
	// provider is actually built into a harness.
	require.NoError(t, cfg.Validate())
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
memory:
  driver: sqlite
  path: /tmp/harnessd.db
provider:
  name: openai
  model: gpt-4o
  max_tokens: 2048
chat:
  max_tool_round_trips: 6
  temperature: 0.2
  temperature_set: true
policy:
  mode: bounded_batch
  max_turns_per_run: 12
  max_features_per_run: 3
logging:
  level: debug
  format: console
`))
	require.NoError(t, err)

	assert.Equal(t, memory.DriverSQLite, cfg.Memory.Driver)
	assert.Equal(t, "/tmp/harnessd.db", cfg.Memory.Path)
	assert.Equal(t, ProviderOpenAI, cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, harness.BoundedBatch, cfg.Policy.Mode)
	assert.Equal(t, 3, cfg.Policy.MaxFeaturesPerRun)
	assert.Equal(t, "debug", cfg.Logging.Level)

	chatCfg := cfg.ChatSettings()
	assert.Equal(t, 6, chatCfg.MaxToolRoundTrips)
	assert.Equal(t, 2048, chatCfg.DefaultMaxTokens)
	require.NotNil(t, chatCfg.DefaultTemperature)
	assert.InDelta(t, 0.2, *chatCfg.DefaultTemperature, 1e-9)
}

func TestLoadBytesPartialKeepsDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
provider:
  model: claude-sonnet-4-5
`))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider.Name)
	assert.Equal(t, memory.DriverInMemory, cfg.Memory.Driver)
	assert.Equal(t, harness.StrictIncremental, cfg.Policy.Mode)
	assert.Equal(t, 4096, cfg.Chat.MaxTokens)
}

func TestLoadBytesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "provider:\n  name: cohere\n  model: m\n"},
		{"sqlite without path", "memory:\n  driver: sqlite\nprovider:\n  name: anthropic\n  model: m\n"},
		{"bad policy mode", "provider:\n  name: anthropic\n  model: m\npolicy:\n  mode: yolo\n"},
		{"bad log level", "provider:\n  name: anthropic\n  model: m\nlogging:\n  level: shout\n"},
		{"malformed yaml", "provider: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HARNESSD_PROVIDER_API_KEY", "provider.api_key"},
		{"HARNESSD_MEMORY_DRIVER", "memory.driver"},
		{"HARNESSD_POLICY_MAX_TURNS_PER_RUN", "policy.max_turns_per_run"},
		{"HARNESSD_SYSTEM_PROMPT", "system_prompt"},
		{"HARNESSD_WORKDIR", "workdir"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKeyTransform(tt.in), tt.in)
	}
}

func TestResolveAPIKey(t *testing.T) {
	p := ProviderConfig{Name: ProviderAnthropic, APIKey: "explicit"}
	assert.Equal(t, "explicit", p.ResolveAPIKey())

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	p.APIKey = ""
	assert.Equal(t, "from-env", p.ResolveAPIKey())

	t.Setenv("OPENAI_API_KEY", "oai-env")
	p.Name = ProviderOpenAI
	assert.Equal(t, "oai-env", p.ResolveAPIKey())
}

func TestBuildProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Provider.Model = "claude-sonnet-4-5"
	cfg.Provider.APIKey = "test-key"

	p, err := cfg.BuildProvider(nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	cfg.Provider.Name = ProviderOpenAI
	p, err = cfg.BuildProvider(nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	cfg.Provider.Name = "cohere"
	_, err = cfg.BuildProvider(nil)
	require.Error(t, err)
}
