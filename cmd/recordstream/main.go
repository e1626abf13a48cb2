// Package main records a raw provider stream for replay in provider tests.
// Usage:
//
//	GEMINI_API_KEY=xxx go run ./cmd/recordstream \
//	  -provider=gemini \
//	  -output=internal/providers/gemini/testdata/stream.sse
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"househunt/internal/core"
	"househunt/internal/persona"
	"househunt/internal/providers"
	"househunt/internal/providers/gemini"
	"househunt/internal/providers/openai"
)

var envKeys = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// teeTransport copies every successful response body into w as it is read.
type teeTransport struct {
	next http.RoundTripper
	w    io.Writer
}

func (t *teeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.TeeReader(resp.Body, t.w), resp.Body}
	return resp, nil
}

func main() {
	providerType := flag.String("provider", "gemini", "Provider to record (gemini, openai)")
	model := flag.String("model", "", "Override the provider's default model")
	prompt := flag.String("prompt", "Find me a 2-bed in Austin under $2000", "User message to send")
	output := flag.String("output", "", "Output file path (required)")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*providerType, *model, *prompt, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(providerType, model, prompt, output string) error {
	envKey, ok := envKeys[providerType]
	if !ok {
		return fmt.Errorf("unknown provider %q", providerType)
	}
	if model == "" {
		model = map[string]string{"gemini": "gemini-2.0-flash", "openai": "gpt-3.5-turbo"}[providerType]
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	factory := providers.NewProviderFactory()
	factory.Add(gemini.Registration)
	factory.Add(openai.Registration)

	provider, err := factory.Create(providerType, providers.Options{
		Persona:    persona.Default(),
		Model:      model,
		Credential: providers.EnvCredential(envKey, ""),
		HTTPClient: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: &teeTransport{next: http.DefaultTransport, w: f},
		},
	})
	if err != nil {
		return err
	}

	input, err := provider.NormalizeHistory([]core.Message{{Role: core.RoleUser, Content: prompt}})
	if err != nil {
		return err
	}

	fmt.Printf("Streaming from %s (%s)...\n", provider.Name(), provider.Model())
	stream, err := provider.StreamCompletion(context.Background(), input)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	fragments := 0
	for chunk, err := range stream.Chunks() {
		if err != nil {
			return err
		}
		if chunk.Text != "" {
			fragments++
			fmt.Print(chunk.Text)
		}
	}
	fmt.Printf("\n\n%d fragments; raw stream saved to %s\n", fragments, output)
	return nil
}
