package usage

import "time"

const (
	// BatchFlushThreshold is the number of queued entries that triggers an immediate flush.
	BatchFlushThreshold = 100

	// CleanupInterval is how often retention cleanup runs.
	CleanupInterval = 1 * time.Hour
)
