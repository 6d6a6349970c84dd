package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Commonly used errors
var (
	ErrTitleTooLong    = ErrTooLong("title")
	ErrBodyTooLong     = ErrTooLong("content")
	ErrVideoURLTooLong = ErrTooLong("video URL")
	ErrEmptySubmission = ErrInvalidInput(
		"enter some content, upload an image or add a video URL")
	ErrInvalidPasscode = ErrAccessDenied("invalid passcode")
	ErrNoSession       = ErrAccessDenied("no session")
	ErrInvalidVote     = ErrInvalidInput("vote must be up or down")
)

// StatusError is a simple error with HTTP status code attached
type StatusError struct {
	Err  error
	Code int
}

func (e StatusError) Error() string {
	var prefix string
	switch e.Code {
	case 400:
		prefix = "invalid input"
	case 403:
		prefix = "access denied"
	case 404:
		prefix = "not found"
	case 500:
		prefix = "internal server error"
	case 503:
		prefix = "service unavailable"
	}
	if prefix == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", prefix, e.Err)
}

// Unwrap returns the inner error
func (e StatusError) Unwrap() error {
	return e.Err
}

// ErrTooLong is passed, when a field exceeds the maximum string length for
// that specific field
func ErrTooLong(s string) error {
	return StatusError{errors.New(s + " too long"), 400}
}

// ErrInvalidInput is an error that invalid user input was supplied
func ErrInvalidInput(s string) error {
	return StatusError{errors.New(s), 400}
}

// ErrAccessDenied is an error that user does not have enough access rights
func ErrAccessDenied(s string) error {
	return StatusError{errors.New(s), 403}
}

// ErrInvalidBoard is an error that an invalid board was provided
func ErrInvalidBoard(board string) error {
	return StatusError{fmt.Errorf("board `%s` does not exist", board), 404}
}

// ErrWriteFailed is returned, when the store rejected an append. The operation
// is never retried automatically.
func ErrWriteFailed(err error) error {
	return StatusError{fmt.Errorf("write rejected: %w", err), 503}
}

// ErrSubscriptionFailed is returned, when a live feed could not be established
// or was lost
func ErrSubscriptionFailed(err error) error {
	return StatusError{fmt.Errorf("subscription failed: %w", err), 503}
}

// ErrMediaUnprocessable is an error that an image or video attachment could
// not be resolved. It never blocks the rest of a submission.
func ErrMediaUnprocessable(kind string, err error) error {
	return StatusError{fmt.Errorf("%s unprocessable: %w", kind, err), 400}
}

// ErrNonPrintable is an error that user input has non-printable runes
func ErrNonPrintable(r rune) error {
	return StatusError{
		fmt.Errorf("contains non-printable character: %d", int(r)),
		400,
	}
}

// StatusCode returns the HTTP status code of err. Errors without one are
// internal server errors.
func StatusCode(err error) int {
	var s StatusError
	if errors.As(err, &s) {
		return s.Code
	}
	return 500
}

// CanIgnoreClientError returns, if client-caused error can be safely ignored
// and not logged
func CanIgnoreClientError(err error) bool {
	if err == nil {
		return true
	}

	switch err := err.(type) {
	case StatusError:
		if c := err.Code; c >= 400 && c < 500 {
			return true
		}
	case *websocket.CloseError:
		return true
	}

	if strings.HasSuffix(err.Error(), "use of closed network connection") {
		return true
	}

	err = errors.Unwrap(err)
	if err != nil {
		return CanIgnoreClientError(err)
	}
	return false
}
