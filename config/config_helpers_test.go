package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no placeholders", input: "simple-string", expected: "simple-string"},
		{name: "simple variable", input: "${LG_KEY}", envVars: map[string]string{"LG_KEY": "sk-1"}, expected: "sk-1"},
		{
			name:     "multiple variables",
			input:    "${LG_SCHEME}://${LG_HOST}",
			envVars:  map[string]string{"LG_SCHEME": "https", "LG_HOST": "api.example.com"},
			expected: "https://api.example.com",
		},
		{name: "default used when missing", input: "${LG_MISSING:-fallback}", expected: "fallback"},
		{name: "default used when empty", input: "${LG_EMPTY:-fallback}", envVars: map[string]string{"LG_EMPTY": ""}, expected: "fallback"},
		{name: "default with colons", input: "${LG_URL:-http://localhost:3000}", expected: "http://localhost:3000"},
		{name: "empty default", input: "${LG_OPTIONAL:-}", expected: ""},
		{name: "unresolved stays", input: "${LG_UNSET}", expected: "${LG_UNSET}"},
		{name: "empty without default stays", input: "${LG_EMPTY}", envVars: map[string]string{"LG_EMPTY": ""}, expected: "${LG_EMPTY}"},
		{
			name:     "mixed",
			input:    "${LG_A}:${LG_B:-b}:${LG_C}",
			envVars:  map[string]string{"LG_A": "a"},
			expected: "a:b:${LG_C}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			if got := expandString(tt.input, os.Getenv); got != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "8081"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8081", cfg.Server.Port)
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgresql", cfg.Storage.Type)
				assert.Equal(t, "postgres://localhost/test", cfg.Storage.PostgreSQL.URL)
				assert.Equal(t, 20, cfg.Storage.PostgreSQL.MaxConns)
			},
		},
		{
			name: "provider credentials",
			envVars: map[string]string{
				"OPENAI_API_KEY":      "sk-openai",
				"OPENAI_ASSISTANT_ID": "asst_1",
				"ELEVENLABS_API_KEY":  "xi",
				"AZURE_SPEECH_KEY":    "az",
				"AZURE_SPEECH_REGION": "westeurope",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "sk-openai", cfg.OpenAI.APIKey)
				assert.Equal(t, "asst_1", cfg.OpenAI.AssistantID)
				assert.Equal(t, "xi", cfg.ElevenLabs.APIKey)
				assert.Equal(t, "az", cfg.Azure.Key)
				assert.Equal(t, "westeurope", cfg.Azure.Region)
			},
		},
		{
			name:    "metrics and CORS",
			envVars: map[string]string{"METRICS_ENABLED": "true", "CORS_ALLOW_ORIGINS": "https://a.example, https://b.example"},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Metrics.Enabled)
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowOrigins)
			},
		},
		{
			name:    "HTTP timeouts",
			envVars: map[string]string{"HTTP_TIMEOUT": "30", "HTTP_RESPONSE_HEADER_TIMEOUT": "60"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30, cfg.HTTP.Timeout)
				assert.Equal(t, 60, cfg.HTTP.ResponseHeaderTimeout)
			},
		},
		{
			name:    "usage recording",
			envVars: map[string]string{"USAGE_ENABLED": "1", "USAGE_RETENTION_DAYS": "0", "USAGE_FLUSH_INTERVAL": "2"},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Usage.Enabled)
				assert.Equal(t, 0, cfg.Usage.RetentionDays)
				assert.Equal(t, 2, cfg.Usage.FlushInterval)
				assert.Equal(t, 1000, cfg.Usage.BufferSize)
			},
		},
		{
			name: "no env vars preserves defaults",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "3000", cfg.Server.Port)
				assert.Equal(t, 300, cfg.HTTP.Timeout)
				assert.Equal(t, 1000, cfg.OpenAI.PollIntervalMs)
				assert.Empty(t, cfg.Storage.Type)
				assert.False(t, cfg.Usage.Enabled)
				assert.Equal(t, 90, cfg.Usage.RetentionDays)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_InvalidBool(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("USAGE_ENABLED", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_EmptyEnvKeepsDefault(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowOrigins)
}

func TestLoad_YAMLWithPlaceholders(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yamlContent := `
server:
  port: "${LG_TEST_PORT:-4000}"
openai:
  api_key: "${LG_TEST_OPENAI_KEY:-yaml-key}"
  chat_model: gpt-4o
elevenlabs:
  voices:
    italien: it-voice
    default: en-voice
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o644))
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "yaml-key", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ChatModel)
	assert.Equal(t, "it-voice", cfg.ElevenLabs.Voices["italien"])
	assert.Equal(t, 300, cfg.HTTP.Timeout, "defaults survive a partial file")
}

func TestLoad_EnvBeatsYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: \"4000\"\n"), 0o644))
	t.Setenv("PORT", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Server.Port)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	dotenv := "MISTRAL_MODEL=mistral-large-latest\nPORT=7000\nLG_DOTENV_KEY=from-dotenv\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("anthropic:\n  api_key: \"${LG_DOTENV_KEY}\"\nmistral:\n  model: yaml-model\n"), 0o644))
	t.Setenv("MISTRAL_MODEL", "")
	t.Setenv("PORT", "7500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral-large-latest", cfg.Mistral.Model, ".env beats config.yaml")
	assert.Equal(t, "7500", cfg.Server.Port, "environment beats .env")
	assert.Equal(t, "from-dotenv", cfg.Anthropic.APIKey, "placeholders resolve from .env")
}

// chdir changes the working directory to dir and restores it when the test
// ends, mirroring testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
