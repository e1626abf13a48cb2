package core

import "context"

// ProviderInput is the provider-specific request produced by NormalizeHistory.
type ProviderInput interface {
	// Turns reports how many conversation entries the input carries, persona included.
	Turns() int
}

// ChatProvider adapts a caller conversation to one model vendor's streaming API.
// Implementations must be safe for concurrent use.
type ChatProvider interface {
	// Name returns the provider type, e.g. "gemini".
	Name() string

	// Model returns the model every request is sent to.
	Model() string

	// NormalizeHistory prepends the persona and maps roles into the vendor's shape.
	NormalizeHistory(msgs []Message) (ProviderInput, error)

	// StreamCompletion opens a streaming call. Errors returned here happen before any
	// output exists. The caller must Close the returned stream.
	StreamCompletion(ctx context.Context, input ProviderInput) (*Stream, error)
}
