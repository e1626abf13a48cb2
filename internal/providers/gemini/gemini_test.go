package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"househunt/config"
	"househunt/internal/core"
	"househunt/internal/persona"
	"househunt/internal/providers"
)

var testPersona = persona.Persona{Prompt: "You are Hunter.", Acknowledgement: "Understood."}

func newTestProvider(baseURL, key, historyMode string) *Provider {
	return New(providers.Options{
		Persona:     testPersona,
		Model:       "gemini-2.0-flash",
		BaseURL:     baseURL,
		Credential:  providers.StaticCredential(key),
		HistoryMode: historyMode,
	}).(*Provider)
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: ")
		b.WriteString(e)
		b.WriteString("\r\n\r\n")
	}
	return b.String()
}

func textEvent(text string) string {
	data, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
	return string(data)
}

func TestNormalizeHistory_FullMode(t *testing.T) {
	p := newTestProvider("", "k", config.HistoryFull)

	input, err := p.NormalizeHistory([]core.Message{
		{Role: "user", Content: "Find me a 2-bed house"},
		{Role: "assistant", Content: "Which city?"},
		{Role: "system", Content: "Austin"},
	})
	require.NoError(t, err)

	req := input.(*generateContentRequest)
	require.Equal(t, 5, req.Turns())
	assert.Equal(t, textContent("user", "You are Hunter."), req.Contents[0])
	assert.Equal(t, textContent("model", "Understood."), req.Contents[1])
	assert.Equal(t, textContent("user", "Find me a 2-bed house"), req.Contents[2])
	assert.Equal(t, textContent("model", "Which city?"), req.Contents[3])
	assert.Equal(t, textContent("user", "Austin"), req.Contents[4])
	assert.Nil(t, req.GenerationConfig)
}

func TestNormalizeHistory_LastMode(t *testing.T) {
	p := newTestProvider("", "k", config.HistoryLast)

	input, err := p.NormalizeHistory([]core.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "latest"},
	})
	require.NoError(t, err)

	req := input.(*generateContentRequest)
	require.Equal(t, 3, req.Turns())
	assert.Equal(t, "You are Hunter.", req.Contents[0].Parts[0].Text)
	assert.Equal(t, textContent("user", "latest"), req.Contents[2])
}

func TestNormalizeHistory_LastModeAlwaysSendsUserTurn(t *testing.T) {
	p := newTestProvider("", "k", config.HistoryLast)

	input, err := p.NormalizeHistory([]core.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "latest"},
	})
	require.NoError(t, err)

	req := input.(*generateContentRequest)
	require.Equal(t, 3, req.Turns())
	assert.Equal(t, textContent("model", testPersona.Acknowledgement), req.Contents[1])
	assert.Equal(t, textContent("user", "latest"), req.Contents[2])
}

func TestNormalizeHistory_PersonaOnce(t *testing.T) {
	p := newTestProvider("", "k", config.HistoryFull)
	msgs := []core.Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}}

	input, err := p.NormalizeHistory(msgs)
	require.NoError(t, err)

	count := 0
	for _, c := range input.(*generateContentRequest).Contents {
		if c.Parts[0].Text == testPersona.Prompt {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []core.Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}}, msgs, "input must not be modified")
}

func TestNormalizeHistory_Empty(t *testing.T) {
	_, err := newTestProvider("", "k", config.HistoryFull).NormalizeHistory(nil)
	var chatErr *core.ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, core.KindClientInput, chatErr.Kind)
}

func TestNormalizeHistory_GenerationConfig(t *testing.T) {
	temp := 0.2
	maxTokens := 256
	p := New(providers.Options{
		Persona:     testPersona,
		HistoryMode: config.HistoryFull,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}).(*Provider)

	input, err := p.NormalizeHistory([]core.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	data, err := json.Marshal(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"contents": [
			{"role": "user", "parts": [{"text": "You are Hunter."}]},
			{"role": "model", "parts": [{"text": "Understood."}]},
			{"role": "user", "parts": [{"text": "hi"}]}
		],
		"generationConfig": {"temperature": 0.2, "maxOutputTokens": 256}
	}`, string(data))
}

func TestStreamCompletion(t *testing.T) {
	var received generateContentRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody(
			textEvent("Sure! "),
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking","thought":true}]}}]}`,
			textEvent("Here are "),
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"listings"},{"text":" in Austin."}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":120,"candidatesTokenCount":9,"totalTokenCount":129},"responseId":"resp-1"}`,
		))
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "test-key", config.HistoryFull)
	input, err := p.NormalizeHistory([]core.Message{{Role: "user", Content: "Find me a 2-bed house under $2000 in Austin"}})
	require.NoError(t, err)

	stream, err := p.StreamCompletion(context.Background(), input)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var texts []string
	var last core.Chunk
	for chunk, err := range stream.Chunks() {
		require.NoError(t, err)
		texts = append(texts, chunk.Text)
		last = chunk
	}

	assert.Equal(t, []string{"Sure! ", "", "Here are ", "listings in Austin."}, texts)
	assert.Equal(t, "STOP", last.FinishReason)
	assert.Equal(t, "resp-1", last.ResponseID)
	require.NotNil(t, last.Usage)
	assert.Equal(t, core.Usage{InputTokens: 120, OutputTokens: 9, TotalTokens: 129}, *last.Usage)

	require.Len(t, received.Contents, 3)
	assert.Equal(t, "You are Hunter.", received.Contents[0].Parts[0].Text)
	assert.Equal(t, "Find me a 2-bed house under $2000 in Austin", received.Contents[2].Parts[0].Text)
}

func TestStreamCompletion_MissingCredential(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "", config.HistoryFull)
	input, err := p.NormalizeHistory([]core.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = p.StreamCompletion(context.Background(), input)
	var chatErr *core.ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, core.KindCredential, chatErr.Kind)
	assert.False(t, called.Load(), "provider must not be called without a key")
}

func TestStreamCompletion_SetupError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"models/gemini-9 is not found","status":"NOT_FOUND"}}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "k", config.HistoryFull)
	input, _ := p.NormalizeHistory([]core.Message{{Role: "user", Content: "hi"}})

	_, err := p.StreamCompletion(context.Background(), input)
	var chatErr *core.ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, core.KindProviderSetup, chatErr.Kind)
	assert.Equal(t, "models/gemini-9 is not found", chatErr.Message)
	assert.Equal(t, http.StatusNotFound, chatErr.StatusCode)
}

func TestStreamCompletion_MidStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sseBody(
			textEvent("one"),
			textEvent("two"),
			`{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`,
			textEvent("never"),
		))
	}))
	defer server.Close()

	p := newTestProvider(server.URL, "k", config.HistoryFull)
	input, _ := p.NormalizeHistory([]core.Message{{Role: "user", Content: "hi"}})
	stream, err := p.StreamCompletion(context.Background(), input)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var texts []string
	var streamErr error
	for chunk, err := range stream.Chunks() {
		if err != nil {
			streamErr = err
			break
		}
		texts = append(texts, chunk.Text)
	}

	assert.Equal(t, []string{"one", "two"}, texts)
	var chatErr *core.ChatError
	require.True(t, errors.As(streamErr, &chatErr))
	assert.Equal(t, core.KindProviderStream, chatErr.Kind)
	assert.Equal(t, "The model is overloaded.", chatErr.Message)
}

func TestStreamCompletion_WrongInputType(t *testing.T) {
	p := newTestProvider("", "k", config.HistoryFull)
	_, err := p.StreamCompletion(context.Background(), fakeInput{})
	var chatErr *core.ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, core.KindProviderSetup, chatErr.Kind)
}

type fakeInput struct{}

func (fakeInput) Turns() int { return 0 }

func TestDecodeChunk_Invalid(t *testing.T) {
	_, err := decodeChunk([]byte(`{"candidates": [`))
	var chatErr *core.ChatError
	require.True(t, errors.As(err, &chatErr))
	assert.Equal(t, core.KindProviderStream, chatErr.Kind)
}

func TestDecodeChunk_MetadataOnly(t *testing.T) {
	chunk, err := decodeChunk([]byte(`{"candidates":[{"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3}}`))
	require.NoError(t, err)
	assert.Empty(t, chunk.Text)
	assert.Equal(t, "STOP", chunk.FinishReason)
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 3, chunk.Usage.InputTokens)
}
