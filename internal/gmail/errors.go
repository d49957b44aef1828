package gmail

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx reply from the provider API. Reason carries the
// provider's error message verbatim, which callers inspect for the
// history-cursor staleness heuristic.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gmail: http %d", e.Code)
	}
	return fmt.Sprintf("gmail: http %d: %s", e.Code, e.Reason)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}
