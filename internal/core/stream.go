package core

import (
	"io"
	"iter"
	"sync"
)

// Chunk is one decoded unit of a provider stream. Text is empty for role-only or
// metadata-only chunks.
type Chunk struct {
	Text         string
	ResponseID   string
	FinishReason string
	Usage        *Usage
}

// Stream is a single-pass sequence of chunks backed by an open provider response.
type Stream struct {
	chunks iter.Seq2[Chunk, error]
	body   io.Closer

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps a chunk sequence. body is closed by Close, at most once.
func NewStream(chunks iter.Seq2[Chunk, error], body io.Closer) *Stream {
	return &Stream{chunks: chunks, body: body}
}

// Chunks returns the chunk sequence. It must be ranged over at most once.
func (s *Stream) Chunks() iter.Seq2[Chunk, error] {
	return s.chunks
}

// Close releases the provider response. Safe to call multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.body != nil {
			s.closeErr = s.body.Close()
		}
	})
	return s.closeErr
}
