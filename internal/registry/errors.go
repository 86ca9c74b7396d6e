package registry

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the dashboard rejected the API token. It is
// terminal for the calling command: retrying with the same token cannot
// succeed, so callers surface it prominently instead of retrying.
var ErrUnauthorized = errors.New("unauthorized: check API token")

// StatusError is a non-2xx, non-401 dashboard response. It is a per-item
// failure; callers log it and move on, never aborting a batch over it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("dashboard returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("dashboard returned HTTP %d: %s", e.Code, e.Body)
}
