package engine

import (
	"fmt"
	"time"
)

// APIError represents a non-2xx response from the engine.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.RequestID != "":
		return fmt.Sprintf("engine error: status=%d request_id=%s message=%s", e.StatusCode, e.RequestID, e.Message)
	case e.Message != "":
		return fmt.Sprintf("engine error: status=%d message=%s", e.StatusCode, e.Message)
	case e.RequestID != "":
		return fmt.Sprintf("engine error: status=%d request_id=%s", e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("engine error: status=%d", e.StatusCode)
}

// BadRequestError means the engine rejected the question or could not apply
// it to the data (400/422).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// Reason is the engine's own message, falling back to the full error.
func (e *BadRequestError) Reason() string {
	if e.APIError != nil && e.Message != "" {
		return e.Message
	}
	return e.Error()
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the engine.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("engine failure: %s", e.APIError.Error()) }

// UnreachableError indicates the engine could not be connected to.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("engine unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("engine unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// TimeoutError indicates the engine did not answer within the allowed wait.
type TimeoutError struct {
	Host string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine at %s timed out: %v", e.Host, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AnswerError indicates a 2xx response whose payload could not be understood.
type AnswerError struct {
	Kind string
	Err  error
}

func (e *AnswerError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("invalid %s answer: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("invalid answer: %v", e.Err)
}

func (e *AnswerError) Unwrap() error { return e.Err }
