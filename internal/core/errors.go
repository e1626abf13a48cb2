// Package core provides the types and interfaces shared by the chat gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies where in the request pipeline a failure happened.
type ErrorKind string

const (
	// KindClientInput indicates a malformed or unusable request body.
	KindClientInput ErrorKind = "client_input_error"
	// KindCredential indicates a missing or rejected provider API key.
	KindCredential ErrorKind = "credential_error"
	// KindProviderSetup indicates the provider refused the call before streaming began.
	KindProviderSetup ErrorKind = "provider_setup_error"
	// KindProviderStream indicates a failure after the provider stream was opened.
	KindProviderStream ErrorKind = "provider_stream_error"
)

// ChatError is the error type for every failure the chat pipeline surfaces.
type ChatError struct {
	Kind     ErrorKind
	Message  string
	Provider string
	// StatusCode is the upstream HTTP status, when there was one.
	StatusCode int
	// Original error for debugging (not exposed to clients)
	Err error
}

// Error implements the error interface
func (e *ChatError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ChatError) Unwrap() error {
	return e.Err
}

// MidStream reports whether the error can only be signalled by aborting an open stream.
func (e *ChatError) MidStream() bool {
	return e.Kind == KindProviderStream
}

// ToJSON returns the body written for pre-stream failures.
func (e *ChatError) ToJSON() map[string]string {
	return map[string]string{"error": e.Message}
}

// NewClientInputError creates an error for a request body that cannot be used.
func NewClientInputError(message string, err error) *ChatError {
	return &ChatError{
		Kind:    KindClientInput,
		Message: message,
		Err:     err,
	}
}

// NewCredentialError creates an error for a missing or invalid provider key.
func NewCredentialError(provider, message string) *ChatError {
	return &ChatError{
		Kind:     KindCredential,
		Message:  message,
		Provider: provider,
	}
}

// NewProviderSetupError creates an error for a provider call rejected before streaming.
func NewProviderSetupError(provider string, statusCode int, message string, err error) *ChatError {
	return &ChatError{
		Kind:       KindProviderSetup,
		Message:    message,
		Provider:   provider,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewProviderStreamError creates an error for a failure inside an open stream.
func NewProviderStreamError(provider, message string, err error) *ChatError {
	return &ChatError{
		Kind:     KindProviderStream,
		Message:  message,
		Provider: provider,
		Err:      err,
	}
}

// ParseProviderError converts a non-200 upstream response into a ChatError.
// OpenAI and Gemini both wrap failures as {"error": {"message": ...}}.
func ParseProviderError(provider string, statusCode int, body []byte) *ChatError {
	message := string(body)
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		message = msg.String()
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		err := NewCredentialError(provider, message)
		err.StatusCode = statusCode
		return err
	default:
		return NewProviderSetupError(provider, statusCode, message, nil)
	}
}

// AsChatError returns err as a *ChatError, wrapping unknown errors with the given kind.
func AsChatError(err error, fallback ErrorKind) *ChatError {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}
	return &ChatError{Kind: fallback, Message: err.Error(), Err: err}
}

// ErrorTrace lists the messages of err and everything it wraps, outermost first.
// It stands in for a stack trace in failure logs.
func ErrorTrace(err error) []string {
	var trace []string
	for err != nil {
		trace = append(trace, err.Error())
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				trace = append(trace, ErrorTrace(inner)...)
			}
			return trace
		default:
			err = errors.Unwrap(err)
		}
	}
	return trace
}
