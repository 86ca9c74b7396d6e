package docker

import "errors"

// ErrRuntimeUnavailable indicates the container runtime could not be
// reached at all. Callers abort container discovery on it; other
// discovery mechanisms are unaffected.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")
