package bidcard

import (
	"errors"
	"fmt"
	"strings"
)

// Precondition codes surfaced to callers as client errors. They are
// expected, frequent, recoverable conditions in normal conversational flow
// and are never reported as internal failures.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeUserMismatch    = "user_mismatch"
	CodeMissingFields   = "missing_fields"
	CodeUnknownField    = "unknown_field"
	CodeInvalidValue    = "invalid_value"
)

// PreconditionError is a structured client-error result. For missing-field
// failures it carries the precise field list so a conversational agent can
// ask a targeted follow-up question.
type PreconditionError struct {
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

func (e *PreconditionError) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("%s: %s (missing: %s)", e.Code, e.Message, strings.Join(e.MissingFields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsPrecondition extracts a PreconditionError from an error chain.
func AsPrecondition(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
