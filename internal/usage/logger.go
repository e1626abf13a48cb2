package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LoggerInterface is implemented by Logger and NoopLogger.
type LoggerInterface interface {
	Write(entry *UsageEntry)
	Config() Config
	Close() error
}

// Logger queues entries in memory and writes them to a store in batches,
// either when BatchFlushThreshold entries are pending or every FlushInterval.
type Logger struct {
	store  UsageStore
	config Config

	mu     sync.RWMutex // guards closed against concurrent sends on buffer
	closed bool
	buffer chan *UsageEntry

	done chan struct{}
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(store UsageStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:  store,
		config: cfg,
		buffer: make(chan *UsageEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

// Write queues entry without blocking. Entries are dropped with a warning when
// the queue is full or the logger is closed.
func (l *Logger) Write(entry *UsageEntry) {
	if entry == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"provider", entry.Provider,
			"outcome", entry.Outcome,
		)
	}
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close stops accepting entries, flushes what is queued and closes the store.
// Safe to call multiple times.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.buffer)
	l.mu.Unlock()

	<-l.done
	return l.store.Close()
}

func (l *Logger) flushLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*UsageEntry, 0, BatchFlushThreshold)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.writeBatch(batch)
		batch = make([]*UsageEntry, 0, BatchFlushThreshold)
	}

	for {
		select {
		case entry, ok := <-l.buffer:
			if !ok {
				flush()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := l.store.Flush(ctx); err != nil {
					slog.Error("failed to flush usage store", "error", err)
				}
				cancel()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) writeBatch(batch []*UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch", "error", err, "count", len(batch))
	}
}

// NoopLogger discards entries; used when usage tracking is disabled.
type NoopLogger struct{}

// Write does nothing
func (NoopLogger) Write(*UsageEntry) {}

// Config returns a disabled config
func (NoopLogger) Config() Config { return Config{Enabled: false} }

// Close does nothing
func (NoopLogger) Close() error { return nil }
