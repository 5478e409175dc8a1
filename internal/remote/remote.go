// Package remote calls model provider APIs and reports what each call billed.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoProvider is returned when no caller is configured for a model.
	ErrNoProvider = errors.New("no provider for model")
	// ErrEmptyResponse is a completed call that produced no text.
	ErrEmptyResponse = errors.New("empty response")
)

// Request is one completion call.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
	Role      string
}

// Usage is what the provider reported for a call.
type Usage struct {
	Model            string
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Response is a completed call.
type Response struct {
	Text  string
	Usage Usage
}

// Caller performs a completion call.
type Caller interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req Request) (Response, error)

func (f CallerFunc) Complete(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// BilledError is a failed call the provider billed anyway.
type BilledError struct {
	Usage Usage
	Err   error
}

func (e *BilledError) Error() string {
	return fmt.Sprintf("billed call failed (%d in / %d out tokens): %v", e.Usage.InputTokens, e.Usage.OutputTokens, e.Err)
}

func (e *BilledError) Unwrap() error { return e.Err }

// Billed extracts the usage of a billed failure.
func Billed(err error) (Usage, bool) {
	var be *BilledError
	if errors.As(err, &be) {
		return be.Usage, true
	}
	return Usage{}, false
}

// APIError is a provider error with its HTTP status.
type APIError struct {
	Provider string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %v", e.Provider, e.Status, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt: rate limits,
// overload, server errors and transient network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests, apiErr.Status == 529:
			return true
		case apiErr.Status >= 500:
			return true
		case apiErr.Status >= 400:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"rate limit", "rate_limit", "overloaded",
		"connection refused", "connection reset", "timeout", "eof", "temporary failure",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
