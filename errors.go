package openai

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMessages is returned when a chat request carries no messages.
	ErrNoMessages = errors.New("no messages to send")

	// ErrEmptyStream is returned when a streamed response ends without
	// a single data chunk.
	ErrEmptyStream = errors.New("stream ended without any chunks")

	// ErrNoChoices is returned when a response has an empty choices list.
	ErrNoChoices = errors.New("response contains no choices")
)

// APIError is returned for any non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code: %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

// Temporary reports whether the request may succeed if retried later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
