package streaming

import (
	"errors"
	"io"
)

// DefaultBufferSize is large enough that one text delta arrives in one read.
const DefaultBufferSize = 32 * 1024

// Sink is a response writer that can push buffered bytes to the client.
type Sink interface {
	io.Writer
	Flush()
}

// WriteError reports that the downstream sink stopped accepting bytes,
// usually because the client disconnected.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "streaming: write to client failed: " + e.Err.Error() }

func (e *WriteError) Unwrap() error { return e.Err }

// Copy moves src to dst, flushing after every read so each fragment reaches
// the client as soon as it is produced. It returns nil at io.EOF, a
// *WriteError when dst fails, or src's error.
func Copy(dst Sink, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultBufferSize)
	}

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			w, writeErr := dst.Write(buf[:n])
			written += int64(w)
			if writeErr == nil && w < n {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return written, &WriteError{Err: writeErr}
			}
			dst.Flush()
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
