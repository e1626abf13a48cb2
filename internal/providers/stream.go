package providers

import (
	"errors"
	"io"

	"househunt/internal/core"
	"househunt/internal/pkg/sse"
)

// ChunkDecoder turns one SSE data payload into a chunk. An error aborts the stream.
type ChunkDecoder func(payload []byte) (core.Chunk, error)

// NewSSEStream reads body as SSE and decodes each event with decode.
// Read and decode failures become provider stream errors. The returned
// stream owns body.
func NewSSEStream(provider string, body io.ReadCloser, decode ChunkDecoder) *core.Stream {
	scanner := sse.NewScanner(body)

	chunks := func(yield func(core.Chunk, error) bool) {
		for {
			payload, err := scanner.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(core.Chunk{}, core.NewProviderStreamError(provider, "stream read failed: "+err.Error(), err))
				return
			}

			chunk, err := decode([]byte(payload))
			if err != nil {
				yield(core.Chunk{}, core.AsChatError(err, core.KindProviderStream))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}

	return core.NewStream(chunks, body)
}
