// Package usage records one entry per chat stream: token counts, outcome and
// timing. Message content is never stored.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcomes recorded for a stream. Rejected streams failed before their first
// fragment and were answered with an error response.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// UsageStore defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type UsageStore interface {
	// WriteBatch writes multiple usage entries to storage.
	WriteBatch(ctx context.Context, entries []*UsageEntry) error

	// Flush forces any pending writes to complete.
	Flush(ctx context.Context) error

	// Close stops background work. The underlying connection belongs to the storage layer.
	Close() error
}

// UsageEntry represents a single chat stream.
type UsageEntry struct {
	ID        string `json:"id" bson:"_id"`
	RequestID string `json:"request_id" bson:"request_id"`

	// ProviderID is the provider's response ID (e.g. "chatcmpl-abc123").
	ProviderID string `json:"provider_id" bson:"provider_id"`

	// Timestamp is when the stream ended.
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`
	Endpoint string `json:"endpoint" bson:"endpoint"`
	Outcome  string `json:"outcome" bson:"outcome"`

	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`

	Fragments  int   `json:"fragments" bson:"fragments"`
	Bytes      int64 `json:"bytes" bson:"bytes"`
	DurationMs int64 `json:"duration_ms" bson:"duration_ms"`
}

// NewEntry creates an entry with a fresh ID and the current time.
func NewEntry(requestID, provider, model, endpoint string) *UsageEntry {
	return &UsageEntry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		Model:     model,
		Endpoint:  endpoint,
	}
}

// Config holds usage tracking configuration
type Config struct {
	Enabled bool

	// BufferSize is the capacity of the in-memory queue
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
