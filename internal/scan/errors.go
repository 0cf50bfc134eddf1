package scan

import (
	"errors"
	"fmt"
)

// Error kinds a scan can fail with. Callers match them with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrStorage        = errors.New("storage failed")
	ErrIdentification = errors.New("identification failed")
)

func wrapError(kind error, op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Outcome names the error class for logs and metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, ErrIdentification):
		return "identification_error"
	default:
		return "error"
	}
}
