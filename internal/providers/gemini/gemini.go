// Package gemini provides Google Gemini API integration for the chat endpoint.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"househunt/config"
	"househunt/internal/core"
	"househunt/internal/pkg/llmclient"
	"househunt/internal/providers"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Type: "gemini",
	New:  New,
}

const (
	// Native Gemini API; streamGenerateContent with alt=sse.
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	roleUser  = "user"
	roleModel = "model"
)

// Provider implements core.ChatProvider for Google Gemini as a turn-based chat session.
type Provider struct {
	client *llmclient.Client
	opts   providers.Options
}

// New creates a new Gemini provider.
func New(opts providers.Options) core.ChatProvider {
	p := &Provider{opts: opts}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, opts.ClientConfig("gemini", defaultBaseURL), nil)
	return p
}

// Name returns "gemini".
func (p *Provider) Name() string { return "gemini" }

// Model returns the configured model.
func (p *Provider) Model() string { return p.opts.Model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// generateContentRequest is the body of a streamGenerateContent call.
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

// Turns implements core.ProviderInput.
func (r *generateContentRequest) Turns() int { return len(r.Contents) }

func textContent(role, text string) content {
	return content{Role: role, Parts: []part{{Text: text}}}
}

// NormalizeHistory primes the session with the persona as a user turn and the
// acknowledgement as a model turn, then appends the caller's turns. In "last"
// history mode the final caller message is sent as the new user turn whatever
// its role, and nothing else follows the priming exchange.
func (p *Provider) NormalizeHistory(msgs []core.Message) (core.ProviderInput, error) {
	if len(msgs) == 0 {
		return nil, core.NewClientInputError("at least one message is required", nil)
	}

	req := &generateContentRequest{
		Contents: make([]content, 0, len(msgs)+2),
	}
	req.Contents = append(req.Contents,
		textContent(roleUser, p.opts.Persona.Prompt),
		textContent(roleModel, p.opts.Persona.Acknowledgement),
	)
	if p.opts.HistoryMode == config.HistoryLast {
		req.Contents = append(req.Contents, textContent(roleUser, msgs[len(msgs)-1].Content))
	} else {
		for _, m := range msgs {
			req.Contents = append(req.Contents, textContent(core.MapRole(m.Role, roleModel, roleUser), m.Content))
		}
	}

	if p.opts.Temperature != nil || p.opts.MaxTokens != nil {
		req.GenerationConfig = &generationConfig{
			Temperature:     p.opts.Temperature,
			MaxOutputTokens: p.opts.MaxTokens,
		}
	}
	return req, nil
}

// StreamCompletion opens a streamGenerateContent call.
func (p *Provider) StreamCompletion(ctx context.Context, input core.ProviderInput) (*core.Stream, error) {
	req, ok := input.(*generateContentRequest)
	if !ok {
		return nil, core.NewProviderSetupError("gemini", 0, fmt.Sprintf("unexpected input type %T", input), nil)
	}

	apiKey, err := p.opts.ResolveCredential("gemini")
	if err != nil {
		return nil, err
	}

	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/models/" + url.PathEscape(p.opts.Model) + ":streamGenerateContent?alt=sse",
		Model:    p.opts.Model,
		Body:     req,
		Headers:  map[string]string{"x-goog-api-key": apiKey},
	})
	if err != nil {
		return nil, err
	}
	return providers.NewSSEStream("gemini", body, decodeChunk), nil
}

// decodeChunk extracts the text delta of one generateContentResponse event.
// Each event carries only the new text, split across the first candidate's parts.
// Thought summaries are not part of the answer.
func decodeChunk(payload []byte) (core.Chunk, error) {
	if !gjson.ValidBytes(payload) {
		return core.Chunk{}, core.NewProviderStreamError("gemini", "invalid stream chunk: "+truncate(string(payload)), nil)
	}
	parsed := gjson.ParseBytes(payload)

	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		return core.Chunk{}, core.NewProviderStreamError("gemini", errMsg.String(), nil)
	}

	var text strings.Builder
	for _, pt := range parsed.Get("candidates.0.content.parts").Array() {
		if pt.Get("thought").Bool() {
			continue
		}
		text.WriteString(pt.Get("text").String())
	}

	chunk := core.Chunk{
		Text:         text.String(),
		ResponseID:   parsed.Get("responseId").String(),
		FinishReason: parsed.Get("candidates.0.finishReason").String(),
	}
	if usage := parsed.Get("usageMetadata"); usage.Exists() {
		chunk.Usage = &core.Usage{
			InputTokens:  int(usage.Get("promptTokenCount").Int()),
			OutputTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:  int(usage.Get("totalTokenCount").Int()),
		}
	}
	return chunk, nil
}

func truncate(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
