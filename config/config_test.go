package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `environment: staging
nwc_string: "nostr+walletconnect://abc?relay=wss://relay.example.com&secret=def"
expert_privkey: "deadbeef"
ask_relays:
  - "wss://ask.example.com"
question_relays:
  - "wss://question.example.com"
hashtags:
  - "askexperts"
logging:
  level: debug
  format: text
metrics:
  enabled: true
  addr: ":9090"
`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "deadbeef", cfg.ExpertPrivKey)
	assert.Equal(t, []string{"wss://ask.example.com"}, cfg.AskRelays)
	assert.Equal(t, []string{"wss://question.example.com"}, cfg.QuestionRelays)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	// setDefaults fills the rest
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 600*time.Second, cfg.BidTimeout)
}

func TestLoadFromFile_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	configContent := `{
		"environment": "production",
		"nwc_string": "nostr+walletconnect://abc?relay=wss://relay.example.com&secret=def",
		"expert_privkey": "cafebabe",
		"ask_relays": ["wss://ask.example.com"],
		"question_relays": ["wss://question.example.com"]
	}`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "cafebabe", cfg.ExpertPrivKey)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "out.yaml")
	jsonPath := filepath.Join(tmpDir, "out.json")

	cfg := &Config{
		Environment:    "development",
		NWCString:      "nostr+walletconnect://abc?relay=wss://relay.example.com&secret=def",
		ExpertPrivKey:  "deadbeef",
		AskRelays:      []string{"wss://ask.example.com"},
		QuestionRelays: []string{"wss://question.example.com"},
	}

	require.NoError(t, SaveToFile(cfg, yamlPath))
	require.NoError(t, SaveToFile(cfg, jsonPath))

	loadedYAML, err := LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.ExpertPrivKey, loadedYAML.ExpertPrivKey)

	loadedJSON, err := LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.ExpertPrivKey, loadedJSON.ExpertPrivKey)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{
		Logging: &LoggingConfig{},
		Metrics: &MetricsConfig{},
		Health:  &HealthConfig{},
	}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 600*time.Second, cfg.BidTimeout)
	assert.Equal(t, []string{}, cfg.Hashtags)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "/healthz", cfg.Health.Path)
}

func TestSetDefaults_DoesNotOverrideExisting(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		BidTimeout:  30 * time.Second,
		Hashtags:    []string{"foo"},
	}
	setDefaults(cfg)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.BidTimeout)
	assert.Equal(t, []string{"foo"}, cfg.Hashtags)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *Config
		wantFields []string
	}{
		{
			name: "valid config",
			cfg: &Config{
				NWCString:      "nostr+walletconnect://...",
				ExpertPrivKey:  "deadbeef",
				AskRelays:      []string{"wss://ask.example.com"},
				QuestionRelays: []string{"wss://question.example.com"},
			},
			wantFields: nil,
		},
		{
			name:       "everything missing",
			cfg:        &Config{},
			wantFields: []string{"nwc_string", "expert_privkey", "ask_relays", "question_relays"},
		},
		{
			name: "missing relays only",
			cfg: &Config{
				NWCString:     "nostr+walletconnect://...",
				ExpertPrivKey: "deadbeef",
			},
			wantFields: []string{"ask_relays", "question_relays"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.cfg)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "nwc_string", Message: "is required"}
	assert.Equal(t, "nwc_string: is required", err.Error())
}
