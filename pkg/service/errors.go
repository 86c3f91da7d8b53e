package service

import "errors"

var (
	// ErrInvalidInput is user-correctable; its wrapped message is safe to show.
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("short code already exists")
	ErrNotFound     = errors.New("short link not found")
	// ErrStorageFailure hides backend detail from callers; the detail is logged.
	ErrStorageFailure = errors.New("storage failure")
	ErrExhausted      = errors.New("no free short code available")
)

// Kind names the error category for transport layers.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	default:
		return "storage_failure"
	}
}
