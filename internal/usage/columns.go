package usage

import (
	"strings"
	"time"
)

// usageColumns is the column order shared by the SQL stores.
var usageColumns = []string{
	"id", "request_id", "provider_id", "timestamp", "provider", "model", "endpoint", "outcome",
	"input_tokens", "output_tokens", "total_tokens", "fragments", "bytes", "duration_ms",
}

var insertColumnList = strings.Join(usageColumns, ", ")

// values returns e's fields in usageColumns order. ts is the encoded timestamp,
// which differs per driver.
func (e *UsageEntry) values(ts any) []any {
	return []any{
		e.ID, e.RequestID, e.ProviderID, ts, e.Provider, e.Model, e.Endpoint, e.Outcome,
		e.InputTokens, e.OutputTokens, e.TotalTokens, e.Fragments, e.Bytes, e.DurationMs,
	}
}

// sqliteTimestamp formats t so that lexical order in TEXT columns matches time order.
func sqliteTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
