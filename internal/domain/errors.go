package domain

import "errors"

// Error kinds surfaced by the reconcilers. Callers match them with errors.Is;
// the concrete error usually wraps one of these with context.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrDataIntegrity  = errors.New("data integrity violation")
	ErrTransientStore = errors.New("transient store error")
	ErrInvalidInput   = errors.New("invalid input")
)

// IsRetryable reports whether the whole operation may be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
