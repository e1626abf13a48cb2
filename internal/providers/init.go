package providers

import (
	"fmt"
	"log/slog"

	"househunt/config"
	"househunt/internal/core"
	"househunt/internal/httpclient"
	"househunt/internal/persona"
	"househunt/internal/pkg/llmclient"
)

// InitConfig holds the runtime collaborators a provider needs beyond config.
type InitConfig struct {
	Persona persona.Persona
	// Hooks observe upstream calls; the zero value observes nothing.
	Hooks llmclient.Hooks
}

// Init builds the configured chat provider from factory.
func Init(cfg *config.Config, factory *ProviderFactory, initCfg InitConfig) (core.ChatProvider, error) {
	if factory == nil {
		return nil, fmt.Errorf("provider factory is required")
	}

	provider, err := factory.Create(cfg.Provider.Type, OptionsFromConfig(cfg, initCfg))
	if err != nil {
		return nil, fmt.Errorf("%w (registered: %v)", err, factory.ListRegistered())
	}

	if _, ok := EnvCredential(cfg.Provider.APIKeyEnv, cfg.Provider.APIKey)(); !ok {
		// Not fatal: the key is read again on every request.
		slog.Warn("provider API key is not set; chat requests will fail until it is",
			"provider", provider.Name(),
			"env", cfg.Provider.APIKeyEnv,
		)
	}

	slog.Info("chat provider initialized",
		"provider", provider.Name(),
		"model", provider.Model(),
		"history_mode", cfg.Provider.HistoryMode,
	)
	return provider, nil
}

// OptionsFromConfig maps the provider, HTTP and persona settings onto Options.
func OptionsFromConfig(cfg *config.Config, initCfg InitConfig) Options {
	httpCfg := httpclient.DefaultConfig().WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)

	opts := Options{
		Persona:     initCfg.Persona,
		Model:       cfg.Provider.Model,
		BaseURL:     cfg.Provider.BaseURL,
		Credential:  EnvCredential(cfg.Provider.APIKeyEnv, cfg.Provider.APIKey),
		HistoryMode: cfg.Provider.HistoryMode,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		HTTPClient:  httpclient.NewHTTPClient(&httpCfg),
		Hooks:       initCfg.Hooks,
	}
	if cb := cfg.Provider.CircuitBreaker; cb != nil {
		opts.CircuitBreaker = &llmclient.CircuitBreakerConfig{
			FailureThreshold: cb.FailureThreshold,
			SuccessThreshold: cb.SuccessThreshold,
			Timeout:          cb.Timeout,
		}
	}
	return opts
}
