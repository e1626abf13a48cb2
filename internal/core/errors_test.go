package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ChatError
		expected string
	}{
		{
			name:     "with provider",
			err:      NewProviderSetupError("openai", http.StatusBadRequest, "model not found", nil),
			expected: "[openai] provider_setup_error: model not found",
		},
		{
			name:     "without provider",
			err:      NewClientInputError("at least one message is required", nil),
			expected: "client_input_error: at least one message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestChatError_ToJSON(t *testing.T) {
	err := NewCredentialError("gemini", "GEMINI_API_KEY is not set")
	assert.Equal(t, map[string]string{"error": "GEMINI_API_KEY is not set"}, err.ToJSON())
}

func TestChatError_MidStream(t *testing.T) {
	assert.True(t, NewProviderStreamError("openai", "connection reset", nil).MidStream())
	assert.False(t, NewProviderSetupError("openai", 500, "boom", nil).MidStream())
	assert.False(t, NewClientInputError("bad", nil).MidStream())
}

func TestChatError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := NewProviderSetupError("gemini", http.StatusBadGateway, "failed to send request", inner)
	assert.ErrorIs(t, err, inner)
}

func TestParseProviderError(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantKind    ErrorKind
		wantMessage string
	}{
		{
			name:        "unauthorized maps to credential error",
			statusCode:  http.StatusUnauthorized,
			body:        `{"error":{"message":"Incorrect API key provided"}}`,
			wantKind:    KindCredential,
			wantMessage: "Incorrect API key provided",
		},
		{
			name:        "forbidden maps to credential error",
			statusCode:  http.StatusForbidden,
			body:        `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`,
			wantKind:    KindCredential,
			wantMessage: "API key not valid",
		},
		{
			name:        "rate limit maps to setup error",
			statusCode:  http.StatusTooManyRequests,
			body:        `{"error":{"message":"quota exceeded"}}`,
			wantKind:    KindProviderSetup,
			wantMessage: "quota exceeded",
		},
		{
			name:        "non-json body is kept verbatim",
			statusCode:  http.StatusBadGateway,
			body:        "upstream unavailable",
			wantKind:    KindProviderSetup,
			wantMessage: "upstream unavailable",
		},
		{
			name:        "empty body falls back to status text",
			statusCode:  http.StatusServiceUnavailable,
			body:        "",
			wantKind:    KindProviderSetup,
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseProviderError("openai", tt.statusCode, []byte(tt.body))
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Equal(t, tt.statusCode, err.StatusCode)
			assert.Equal(t, "openai", err.Provider)
		})
	}
}

func TestAsChatError(t *testing.T) {
	original := NewCredentialError("openai", "missing key")
	wrapped := fmt.Errorf("open stream: %w", original)
	assert.Same(t, original, AsChatError(wrapped, KindProviderSetup))

	plain := errors.New("boom")
	converted := AsChatError(plain, KindProviderStream)
	assert.Equal(t, KindProviderStream, converted.Kind)
	assert.Equal(t, "boom", converted.Message)
	assert.ErrorIs(t, converted, plain)
}

func TestErrorTrace(t *testing.T) {
	root := errors.New("unexpected EOF")
	err := fmt.Errorf("read chunk: %w", NewProviderStreamError("gemini", "stream interrupted", root))

	trace := ErrorTrace(err)
	require.Len(t, trace, 3)
	assert.Equal(t, "read chunk: [gemini] provider_stream_error: stream interrupted", trace[0])
	assert.Equal(t, "[gemini] provider_stream_error: stream interrupted", trace[1])
	assert.Equal(t, "unexpected EOF", trace[2])

	assert.Nil(t, ErrorTrace(nil))
}
