// Package openai provides OpenAI API integration for the chat endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"househunt/internal/core"
	"househunt/internal/pkg/llmclient"
	"househunt/internal/providers"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"

	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Provider implements core.ChatProvider for OpenAI chat completions.
type Provider struct {
	client *llmclient.Client
	opts   providers.Options
}

// New creates a new OpenAI provider.
func New(opts providers.Options) core.ChatProvider {
	p := &Provider{opts: opts}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, opts.ClientConfig("openai", defaultBaseURL), p.setHeaders)
	return p
}

// Name returns "openai".
func (p *Provider) Name() string { return "openai" }

// Model returns the configured model.
func (p *Provider) Model() string { return p.opts.Model }

// setHeaders forwards the request ID using OpenAI's X-Client-Request-Id header.
// OpenAI rejects values that are not ASCII or exceed 512 bytes with a 400.
func (p *Provider) setHeaders(req *http.Request) {
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// isOSeriesModel reports whether the model is an o-series reasoning model
// (o1, o3, o4) that takes max_completion_tokens and rejects temperature.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatRequest is the body of a streaming chat completion call.
type chatRequest struct {
	Model               string         `json:"model"`
	Messages            []message      `json:"messages"`
	Stream              bool           `json:"stream"`
	StreamOptions       *streamOptions `json:"stream_options,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	MaxTokens           *int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int           `json:"max_completion_tokens,omitempty"`
}

// Turns implements core.ProviderInput.
func (r *chatRequest) Turns() int { return len(r.Messages) }

// NormalizeHistory builds a flat message list: one system entry holding the
// persona, then every caller message in order.
func (p *Provider) NormalizeHistory(msgs []core.Message) (core.ProviderInput, error) {
	if len(msgs) == 0 {
		return nil, core.NewClientInputError("at least one message is required", nil)
	}

	req := &chatRequest{
		Model:         p.opts.Model,
		Messages:      make([]message, 0, len(msgs)+1),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	req.Messages = append(req.Messages, message{Role: roleSystem, Content: p.opts.Persona.Prompt})
	for _, m := range msgs {
		req.Messages = append(req.Messages, message{
			Role:    core.MapRole(m.Role, roleAssistant, roleUser),
			Content: m.Content,
		})
	}

	if isOSeriesModel(p.opts.Model) {
		req.MaxCompletionTokens = p.opts.MaxTokens
	} else {
		req.Temperature = p.opts.Temperature
		req.MaxTokens = p.opts.MaxTokens
	}
	return req, nil
}

// StreamCompletion opens a streaming chat completion.
func (p *Provider) StreamCompletion(ctx context.Context, input core.ProviderInput) (*core.Stream, error) {
	req, ok := input.(*chatRequest)
	if !ok {
		return nil, core.NewProviderSetupError("openai", 0, fmt.Sprintf("unexpected input type %T", input), nil)
	}

	apiKey, err := p.opts.ResolveCredential("openai")
	if err != nil {
		return nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Model:    req.Model,
		Body:     req,
		Headers:  map[string]string{"Authorization": "Bearer " + apiKey},
	})
	if err != nil {
		return nil, err
	}
	return providers.NewSSEStream("openai", body, decodeChunk), nil
}

// decodeChunk extracts the content delta of one chat.completion.chunk event.
// The final usage chunk has no choices.
func decodeChunk(payload []byte) (core.Chunk, error) {
	if !gjson.ValidBytes(payload) {
		return core.Chunk{}, core.NewProviderStreamError("openai", "invalid stream chunk", nil)
	}
	parsed := gjson.ParseBytes(payload)

	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		return core.Chunk{}, core.NewProviderStreamError("openai", errMsg.String(), nil)
	}

	chunk := core.Chunk{
		Text:         parsed.Get("choices.0.delta.content").String(),
		ResponseID:   parsed.Get("id").String(),
		FinishReason: parsed.Get("choices.0.finish_reason").String(),
	}
	if usage := parsed.Get("usage"); usage.IsObject() {
		chunk.Usage = &core.Usage{
			InputTokens:  int(usage.Get("prompt_tokens").Int()),
			OutputTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:  int(usage.Get("total_tokens").Int()),
		}
	}
	return chunk, nil
}
