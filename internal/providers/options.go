// Package providers holds what every upstream adapter shares: construction
// options and the credential check performed on first use.
package providers

import (
	"net/http"
	"strings"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
)

// ProviderOptions are injected into every adapter at startup.
type ProviderOptions struct {
	// HTTPClient is the process-wide pooled client. A private default is built when nil.
	HTTPClient *http.Client
	// Hooks observe upstream calls (metrics).
	Hooks llmclient.Hooks
}

// RequireCredential returns a configuration error when value is blank.
// Adapters call it before any network I/O so a missing key surfaces as a 500
// on the first request that needs it rather than at startup.
func RequireCredential(provider, value string) error {
	if strings.TrimSpace(value) == "" {
		return core.NewConfigurationError(provider)
	}
	return nil
}

// ClientConfig builds the llmclient configuration for a provider.
func ClientConfig(provider, baseURL string, opts ProviderOptions) llmclient.Config {
	return llmclient.Config{
		ProviderName: provider,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Hooks:        opts.Hooks,
	}
}
