package verification

import (
	"errors"
	"fmt"
)

type Class string

const (
	ClassTimeout        Class = "timeout"
	ClassUnavailable    Class = "unavailable"
	ClassRejected       Class = "rejected"
	ClassInvalidRequest Class = "invalid_request"
)

// Error is the classified failure of a centralizer call. Only Timeout and
// Unavailable are retried.
type Error struct {
	Class      Class
	Operation  Operation
	StatusCode int
	Message    string
	Attempts   int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Operation, e.Class)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) IsRetryable() bool {
	return e.Class == ClassTimeout || e.Class == ClassUnavailable
}

// IsBusinessOutcome reports whether the centralizer answered definitively.
func (e *Error) IsBusinessOutcome() bool {
	return e.Class == ClassRejected || e.Class == ClassInvalidRequest
}

func ClassOf(err error) (Class, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Class, true
	}
	return "", false
}

func newError(class Class, op Operation, statusCode int, message string, cause error) *Error {
	return &Error{
		Class:      class,
		Operation:  op,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}

func invalidRequest(op Operation, message string, cause error) *Error {
	return newError(ClassInvalidRequest, op, 0, message, cause)
}
