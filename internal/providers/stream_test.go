package providers

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"househunt/internal/core"
)

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func textDecoder(payload []byte) (core.Chunk, error) {
	if string(payload) == "boom" {
		return core.Chunk{}, core.NewProviderStreamError("test", "provider reported boom", nil)
	}
	if string(payload) == "bad" {
		return core.Chunk{}, errors.New("not json")
	}
	return core.Chunk{Text: string(payload)}, nil
}

func drain(s *core.Stream) ([]string, error) {
	var texts []string
	for chunk, err := range s.Chunks() {
		if err != nil {
			return texts, err
		}
		texts = append(texts, chunk.Text)
	}
	return texts, nil
}

func TestNewSSEStream(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: Hel\n\ndata: lo\n\ndata: [DONE]\n\n")}
	s := NewSSEStream("test", body, textDecoder)

	texts, err := drain(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, texts)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closed)
}

func TestNewSSEStream_DecodeErrorIsStreamError(t *testing.T) {
	for _, payload := range []string{"boom", "bad"} {
		t.Run(payload, func(t *testing.T) {
			body := &trackingBody{Reader: strings.NewReader("data: ok\n\ndata: " + payload + "\n\ndata: never\n\n")}
			texts, err := drain(NewSSEStream("test", body, textDecoder))

			assert.Equal(t, []string{"ok"}, texts)
			var chatErr *core.ChatError
			require.True(t, errors.As(err, &chatErr))
			assert.Equal(t, core.KindProviderStream, chatErr.Kind)
		})
	}
}

func TestNewSSEStream_ReadError(t *testing.T) {
	body := &trackingBody{Reader: io.MultiReader(
		strings.NewReader("data: one\n\n"),
		errReader{err: io.ErrUnexpectedEOF},
	)}
	texts, err := drain(NewSSEStream("test", body, textDecoder))

	assert.Equal(t, []string{"one"}, texts)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, core.AsChatError(err, core.KindProviderSetup).MidStream())
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
