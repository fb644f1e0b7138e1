package domain

import "errors"

// ErrNotFound is the sentinel returned by repository lookups across every
// package when no matching row exists. Shared here so callers can use
// errors.Is regardless of which concrete Store implementation is wired in.
var ErrNotFound = errors.New("not found")
