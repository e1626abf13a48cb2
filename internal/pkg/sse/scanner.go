// Package sse decodes Server-Sent Events from provider stream bodies.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize is the largest single SSE line accepted (1 MB).
// bufio.Scanner's 64 KiB default is too small for long completions.
const MaxLineSize = 1 * 1024 * 1024

// DoneSentinel marks the end of an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Scanner reads SSE data payloads from a reader.
// Comments and non-data fields (event:, id:, retry:) are skipped.
type Scanner struct {
	scanner *bufio.Scanner
}

// NewScanner creates a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Scanner{scanner: scanner}
}

// Next returns the next event's data payload. Consecutive data lines of one
// event are joined with "\n". Returns io.EOF at end of input or on [DONE].
func (s *Scanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == DoneSentinel {
			return "", io.EOF
		}
		dataLines = append(dataLines, data)
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse scanner error: %w", err)
	}

	// A final event without a trailing blank line still counts.
	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}
	return "", io.EOF
}
