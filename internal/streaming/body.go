// Package streaming turns a provider chunk stream into a plain-text response body.
package streaming

import (
	"context"
	"errors"
	"io"
	"sync"

	"househunt/internal/core"
)

// ErrBodyClosed stops the producer when the body is closed before the stream ends.
var ErrBodyClosed = errors.New("streaming: body closed")

// Summary describes a finished stream.
type Summary struct {
	// Fragments counts non-empty text deltas written to the body.
	Fragments    int
	Bytes        int64
	Usage        *core.Usage
	ResponseID   string
	FinishReason string
	// Err is nil for a stream that ended normally.
	Err error
}

// Body is a lazy, single-pass byte stream over a provider stream. Each
// non-empty text delta becomes one write into an unbuffered pipe, so the
// provider is pulled no faster than the caller reads.
//
// The producer goroutine ends the pipe exactly once: cleanly when the chunks
// run out, with the chunk error on a provider failure, or with the context
// error on cancellation.
type Body struct {
	pr     *io.PipeReader
	stream *core.Stream
	cancel context.CancelFunc
	done   chan struct{}

	summary   Summary
	closeOnce sync.Once
}

// Open starts a provider stream bound to a cancellable child of ctx and wraps
// it in a Body. Errors are the provider's pre-stream errors, returned as is.
func Open(ctx context.Context, provider core.ChatProvider, input core.ProviderInput) (*Body, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := provider.StreamCompletion(ctx, input)
	if err != nil {
		cancel()
		return nil, err
	}
	return newBody(ctx, cancel, stream), nil
}

// NewBody wraps an already opened stream. Cancelling ctx or closing the body
// stops the producer after the chunk in flight.
func NewBody(ctx context.Context, stream *core.Stream) *Body {
	ctx, cancel := context.WithCancel(ctx)
	return newBody(ctx, cancel, stream)
}

func newBody(ctx context.Context, cancel context.CancelFunc, stream *core.Stream) *Body {
	pr, pw := io.Pipe()
	b := &Body{
		pr:     pr,
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.produce(ctx, stream, pw)
	return b
}

func (b *Body) produce(ctx context.Context, stream *core.Stream, pw *io.PipeWriter) {
	var err error
	defer close(b.done)
	defer func() {
		_ = stream.Close()
		b.summary.Err = err
		// CloseWithError(nil) is a clean EOF for the reader.
		_ = pw.CloseWithError(err)
	}()

	for chunk, chunkErr := range stream.Chunks() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return
		}
		if chunkErr != nil {
			// A read failing because we cancelled is a cancellation, not a provider fault.
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				err = chunkErr
			}
			return
		}

		b.record(chunk)
		if chunk.Text == "" {
			continue
		}

		n, writeErr := pw.Write([]byte(chunk.Text))
		b.summary.Bytes += int64(n)
		if writeErr != nil {
			err = writeErr
			return
		}
		b.summary.Fragments++
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
}

func (b *Body) record(chunk core.Chunk) {
	if chunk.Usage != nil {
		u := *chunk.Usage
		b.summary.Usage = &u
	}
	if chunk.ResponseID != "" {
		b.summary.ResponseID = chunk.ResponseID
	}
	if chunk.FinishReason != "" {
		b.summary.FinishReason = chunk.FinishReason
	}
}

// Read reads the next bytes of text. It returns io.EOF after a clean end, or
// the error that stopped the stream.
func (b *Body) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

// Close stops the producer, releases the provider stream and waits for both.
// Closing the stream here unblocks a producer stuck in a read that ignores ctx.
// Safe to call multiple times.
func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		_ = b.pr.CloseWithError(ErrBodyClosed)
		b.cancel()
		_ = b.stream.Close()
		<-b.done
	})
	return nil
}

// Summary returns the stream's outcome. It waits for the producer to finish,
// so call it after Read has returned an error or after Close.
func (b *Body) Summary() Summary {
	<-b.done
	return b.summary
}
