package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_Defaults(t *testing.T) {
	c := NewDefaultHTTPClient()
	assert.Equal(t, DefaultTimeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 100, tr.MaxIdleConns)
	assert.Equal(t, 20, tr.MaxIdleConnsPerHost)
	assert.Equal(t, DefaultTimeout, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClient_Overrides(t *testing.T) {
	c := NewHTTPClient(&ClientConfig{
		Timeout:               30 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConnsPerHost:   -1,
	})
	assert.Equal(t, 30*time.Second, c.Timeout)

	tr := c.Transport.(*http.Transport)
	assert.Equal(t, 10*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 20, tr.MaxIdleConnsPerHost, "non-positive values fall back to defaults")
	assert.Equal(t, 90*time.Second, tr.IdleConnTimeout)
}
