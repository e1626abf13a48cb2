// Package server provides the HTTP surface of the HouseHunt chat endpoint.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"househunt/internal/core"
	"househunt/internal/observability"
	"househunt/internal/streaming"
	"househunt/internal/usage"
)

// HandlerOptions configures optional collaborators of Handler.
type HandlerOptions struct {
	// Endpoint is recorded on usage entries.
	Endpoint    string
	UsageLogger usage.LoggerInterface
	Metrics     *observability.StreamRecorder
}

// Handler holds the HTTP handlers
type Handler struct {
	provider core.ChatProvider
	endpoint string
	usage    usage.LoggerInterface
	metrics  *observability.StreamRecorder
}

// NewHandler creates a new handler with the given provider
func NewHandler(provider core.ChatProvider, opts HandlerOptions) *Handler {
	if opts.UsageLogger == nil {
		opts.UsageLogger = usage.NoopLogger{}
	}
	return &Handler{
		provider: provider,
		endpoint: opts.Endpoint,
		usage:    opts.UsageLogger,
		metrics:  opts.Metrics,
	}
}

// Chat handles POST on the chat route. The body is a JSON array of
// {role, content} messages; the reply is the model's text, streamed as it is
// produced.
//
// Failures before the first fragment are answered with 500 and {"error": msg}.
// Once the 200 header is sent, a provider failure aborts the connection so the
// client sees a truncated body instead of a clean end.
func (h *Handler) Chat(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()
	defer h.metrics.Started()()

	run := &chatRun{requestID: core.GetRequestID(ctx), start: start}
	log := slog.With(
		"request_id", run.requestID,
		"provider", h.provider.Name(),
		"model", h.provider.Model(),
	)

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.reject(c, log, core.NewClientInputError("failed to read request body: "+err.Error(), err))
	}
	msgs, err := core.ParseMessages(raw)
	if err != nil {
		return h.reject(c, log, err)
	}
	input, err := h.provider.NormalizeHistory(msgs)
	if err != nil {
		return h.reject(c, log, err)
	}

	body, err := streaming.Open(ctx, h.provider, input)
	if err != nil {
		return h.reject(c, log, err)
	}
	defer func() { _ = body.Close() }()
	run.log, run.body = log, body

	log.Debug("provider stream opened", "turns", input.Turns())

	// Nothing is committed until the provider produces a first fragment or ends cleanly.
	buf := make([]byte, streaming.DefaultBufferSize)
	n, firstErr := body.Read(buf)
	if n == 0 && firstErr != nil && !errors.Is(firstErr, io.EOF) {
		if ctx.Err() != nil {
			h.finish(run, usage.OutcomeCancelled, firstErr)
			return nil
		}
		h.finish(run, usage.OutcomeRejected, firstErr)
		return writeError(c, log, firstErr)
	}
	h.metrics.FirstFragment(h.provider.Name(), time.Since(start))

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	resp.WriteHeader(http.StatusOK)

	var streamErr error
	if n > 0 {
		if _, err := resp.Write(buf[:n]); err != nil {
			streamErr = &streaming.WriteError{Err: err}
		} else {
			resp.Flush()
		}
	}
	switch {
	case streamErr != nil:
	case firstErr == nil:
		_, streamErr = streaming.Copy(resp, body, buf)
	case !errors.Is(firstErr, io.EOF):
		streamErr = firstErr
	}

	var writeErr *streaming.WriteError
	switch {
	case streamErr == nil:
		h.finish(run, usage.OutcomeCompleted, nil)
		return nil
	case errors.As(streamErr, &writeErr) || ctx.Err() != nil:
		h.finish(run, usage.OutcomeCancelled, streamErr)
		return nil
	default:
		h.finish(run, usage.OutcomeAborted, streamErr)
		// Recover re-panics this and net/http drops the connection without
		// writing the chunked terminator.
		panic(http.ErrAbortHandler)
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// reject answers a failure that happened before a provider stream was opened.
func (h *Handler) reject(c echo.Context, log *slog.Logger, err error) error {
	h.metrics.Finished(h.provider.Name(), usage.OutcomeRejected, 0)
	return writeError(c, log, err)
}

// chatRun carries the per-request state needed once a stream is open.
type chatRun struct {
	requestID string
	start     time.Time
	log       *slog.Logger
	body      *streaming.Body
}

// finish closes the body and records the stream's outcome in metrics, the usage log and slog.
func (h *Handler) finish(run *chatRun, outcome string, err error) {
	_ = run.body.Close()
	summary := run.body.Summary()
	elapsed := time.Since(run.start)
	log := run.log

	h.metrics.Finished(h.provider.Name(), outcome, summary.Fragments)

	entry := usage.NewEntry(run.requestID, h.provider.Name(), h.provider.Model(), h.endpoint)
	entry.ProviderID = summary.ResponseID
	entry.Outcome = outcome
	entry.Fragments = summary.Fragments
	entry.Bytes = summary.Bytes
	entry.DurationMs = elapsed.Milliseconds()
	if summary.Usage != nil {
		entry.InputTokens = summary.Usage.InputTokens
		entry.OutputTokens = summary.Usage.OutputTokens
		entry.TotalTokens = summary.Usage.TotalTokens
	}
	h.usage.Write(entry)

	attrs := []any{
		"outcome", outcome,
		"fragments", summary.Fragments,
		"bytes", summary.Bytes,
		"finish_reason", summary.FinishReason,
		"duration", elapsed,
	}
	switch outcome {
	case usage.OutcomeCompleted:
		log.Info("chat stream completed", attrs...)
	case usage.OutcomeCancelled:
		log.Info("chat stream cancelled by client", append(attrs, "error", err)...)
	case usage.OutcomeAborted:
		chatErr := core.AsChatError(err, core.KindProviderStream)
		log.Error("chat stream aborted", append(attrs,
			"error_kind", chatErr.Kind,
			"error", chatErr.Message,
			"trace", core.ErrorTrace(err),
		)...)
	}
}

// writeError logs err and writes the pre-stream failure response.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	chatErr := core.AsChatError(err, core.KindProviderSetup)
	log.Error("chat request failed",
		"error_kind", chatErr.Kind,
		"error", chatErr.Message,
		"status_code", chatErr.StatusCode,
		"trace", core.ErrorTrace(err),
	)
	return c.JSON(http.StatusInternalServerError, chatErr.ToJSON())
}
