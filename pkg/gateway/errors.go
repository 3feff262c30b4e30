package gateway

import (
	"errors"

	"github.com/run-bigpig/guardchat/pkg/guardrails"
)

// ErrUnreachable is wrapped into every transport-level failure
var ErrUnreachable = errors.New("gateway unreachable")

// APIError is returned when the gateway answers with an error or with a body
// that cannot be used
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

// NewAPIError creates an APIError that did not come from an HTTP status
func NewAPIError(message string) *APIError {
	return &APIError{Message: message}
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// GuardrailViolationError is returned when the gateway blocked a request.
// It unwraps to the underlying *APIError.
type GuardrailViolationError struct {
	*guardrails.GuardrailVerdict

	// Headline is the first line of the rendered message
	Headline string

	apiErr *APIError
}

func newGuardrailViolationError(verdict *guardrails.GuardrailVerdict, statusCode int, body []byte) *GuardrailViolationError {
	return &GuardrailViolationError{
		GuardrailVerdict: verdict,
		Headline:         guardrails.DefaultHeadline,
		apiErr: &APIError{
			StatusCode: statusCode,
			Message:    guardrails.DefaultHeadline,
			Body:       body,
		},
	}
}

// Error returns the rendered violation report
func (e *GuardrailViolationError) Error() string {
	return e.Render(e.Headline)
}

// Unwrap returns the underlying API error
func (e *GuardrailViolationError) Unwrap() error {
	return e.apiErr
}

// StatusCode is the HTTP status of the blocked response
func (e *GuardrailViolationError) StatusCode() int {
	return e.apiErr.StatusCode
}

// IsGuardrailViolation reports whether err carries a guardrail verdict
func IsGuardrailViolation(err error) bool {
	var violation *GuardrailViolationError
	return errors.As(err, &violation)
}

// AsGuardrailViolation extracts the violation error from err's chain
func AsGuardrailViolation(err error) (*GuardrailViolationError, bool) {
	var violation *GuardrailViolationError
	if errors.As(err, &violation) {
		return violation, true
	}
	return nil, false
}
