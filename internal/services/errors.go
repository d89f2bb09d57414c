package services

import "errors"

// ErrUnavailable reports an optional integration that is not configured.
var ErrUnavailable = errors.New("service unavailable")
