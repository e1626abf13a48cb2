package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{name: "unset", value: "", expected: 5 * time.Second},
		{name: "integer seconds", value: "30", expected: 30 * time.Second},
		{name: "duration string", value: "1m30s", expected: 90 * time.Second},
		{name: "invalid", value: "soon", expected: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_HTTP_DURATION", tt.value)
			assert.Equal(t, tt.expected, getEnvDuration("TEST_HTTP_DURATION", 5*time.Second))
		})
	}
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "120")
	t.Setenv("HTTP_RESPONSE_HEADER_TIMEOUT", "")

	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 600*time.Second, cfg.ResponseHeaderTimeout)
}

func TestWithTimeouts(t *testing.T) {
	base := ClientConfig{Timeout: time.Minute, ResponseHeaderTimeout: time.Minute}

	cfg := base.WithTimeouts(10*time.Second, 0)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.ResponseHeaderTimeout)
	assert.Equal(t, time.Minute, base.Timeout, "receiver must not be modified")
}

func TestNewHTTPClient(t *testing.T) {
	cfg := DefaultConfig().WithTimeouts(42*time.Second, 7*time.Second)
	client := NewHTTPClient(&cfg)

	assert.Equal(t, 42*time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, transport.ResponseHeaderTimeout)
	assert.True(t, transport.ForceAttemptHTTP2)
}

func TestNewHTTPClient_NilConfig(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "")
	client := NewHTTPClient(nil)
	assert.Equal(t, 600*time.Second, client.Timeout)
}
