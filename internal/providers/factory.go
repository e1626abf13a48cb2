// Package providers provides a factory for creating chat provider instances.
package providers

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"

	"househunt/internal/core"
	"househunt/internal/persona"
	"househunt/internal/pkg/llmclient"
)

// Options carries everything a provider constructor needs.
type Options struct {
	Persona persona.Persona
	Model   string
	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string
	// Credential is consulted on every request.
	Credential CredentialSource
	// HistoryMode is "full" or "last"; only turn-based providers read it.
	HistoryMode string

	Temperature *float64
	MaxTokens   *int

	HTTPClient     *http.Client
	Hooks          llmclient.Hooks
	CircuitBreaker *llmclient.CircuitBreakerConfig
}

// CredentialSource returns the current API key, or false when none is set.
type CredentialSource func() (string, bool)

// EnvCredential reads envVar at call time and falls back to static when it is unset.
// Rotating the variable takes effect on the next request.
func EnvCredential(envVar, static string) CredentialSource {
	return func() (string, bool) {
		if envVar != "" {
			if v := os.Getenv(envVar); v != "" {
				return v, true
			}
		}
		return static, static != ""
	}
}

// StaticCredential always returns key.
func StaticCredential(key string) CredentialSource {
	return func() (string, bool) { return key, key != "" }
}

// ResolveCredential returns the API key for provider or a credential error.
func (o Options) ResolveCredential(provider string) (string, error) {
	if o.Credential != nil {
		if key, ok := o.Credential(); ok {
			return key, nil
		}
	}
	return "", core.NewCredentialError(provider, "API key is not configured for provider "+provider)
}

// ClientConfig returns the llmclient settings shared by every provider.
func (o Options) ClientConfig(provider, defaultBaseURL string) llmclient.Config {
	baseURL := defaultBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return llmclient.Config{
		ProviderName:   provider,
		BaseURL:        baseURL,
		CircuitBreaker: o.CircuitBreaker,
		Hooks:          o.Hooks,
	}
}

// Registration describes how to construct one provider type.
type Registration struct {
	Type string
	New  func(opts Options) core.ChatProvider
}

// ProviderFactory builds providers by type name.
type ProviderFactory struct {
	mu            sync.RWMutex
	registrations map[string]Registration
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{registrations: make(map[string]Registration)}
}

// Add registers a provider type, replacing any earlier registration of the same type.
func (f *ProviderFactory) Add(reg Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations[reg.Type] = reg
}

// Create instantiates the provider registered under providerType.
func (f *ProviderFactory) Create(providerType string, opts Options) (core.ChatProvider, error) {
	f.mu.RLock()
	reg, ok := f.registrations[providerType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
	return reg.New(opts), nil
}

// ListRegistered returns the registered provider types, sorted.
func (f *ProviderFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registrations))
	for t := range f.registrations {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
