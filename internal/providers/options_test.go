package providers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/core"
)

func TestRequireCredential(t *testing.T) {
	require.NoError(t, RequireCredential("openai", "sk-test"))

	for _, blank := range []string{"", "   ", "\n"} {
		err := RequireCredential("elevenlabs", blank)
		var gwErr *core.GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, core.ErrorTypeConfiguration, gwErr.Type)
		assert.Equal(t, http.StatusInternalServerError, gwErr.HTTPStatusCode())
		assert.Equal(t, "elevenlabs is not configured", gwErr.Message)
	}
}

func TestClientConfig(t *testing.T) {
	cfg := ClientConfig("mistral", "https://api.mistral.ai/v1/", ProviderOptions{})
	assert.Equal(t, "mistral", cfg.ProviderName)
	assert.Equal(t, "https://api.mistral.ai/v1", cfg.BaseURL)
}
