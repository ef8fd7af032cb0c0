package kv

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is reported when the store gives up waiting (HTTP 408),
	// notably when Listen sees no newer version within its window.
	ErrTimeout = errors.New("kv: timeout")
	// ErrCasConflict signals a compare-and-set version mismatch (HTTP 409).
	ErrCasConflict = errors.New("kv: cas version mismatch")
	// ErrTransactionNotFound is reported for unknown or reaped transactions (HTTP 410).
	ErrTransactionNotFound = errors.New("kv: transaction not found")
	// ErrTransactionCompleted is reported for transactions already committed
	// or rolled back (HTTP 412).
	ErrTransactionCompleted = errors.New("kv: transaction already completed")
	// ErrContextEntered is returned when a TransactionContext is entered twice.
	ErrContextEntered = errors.New("kv: transaction context already entered")
)

// ValidationError reports a malformed key or quorum. It is raised locally
// before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kv: invalid %s: %s", e.Field, e.Reason)
}

// StoreError carries any non-success status without a dedicated meaning.
type StoreError struct {
	StatusCode int
	Body       []byte
}

func (e *StoreError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("kv: unexpected server error with code %d", e.StatusCode)
	}
	return fmt.Sprintf("kv: unexpected server error with code %d: %s", e.StatusCode, e.Body)
}

// ErrorForStatus translates a response status into the error taxonomy.
// It returns nil for 200 only.
func ErrorForStatus(status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusRequestTimeout:
		return ErrTimeout
	case http.StatusConflict:
		return ErrCasConflict
	case http.StatusGone:
		return ErrTransactionNotFound
	case http.StatusPreconditionFailed:
		return ErrTransactionCompleted
	default:
		return &StoreError{StatusCode: status, Body: body}
	}
}

// StatusForError is the inverse of ErrorForStatus, used by servers that
// expose a Backend over HTTP. Validation failures map to 400.
func StatusForError(err error) int {
	var (
		verr  *ValidationError
		store *StoreError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrCasConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransactionNotFound):
		return http.StatusGone
	case errors.Is(err, ErrTransactionCompleted):
		return http.StatusPreconditionFailed
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &store):
		return store.StatusCode
	default:
		return http.StatusInternalServerError
	}
}
