package models

import "errors"

// ErrConfig marks configuration errors: invalid state counts, thickness,
// worker counts or interpolation method names. Fatal before any stage runs.
var ErrConfig = errors.New("configuration error")

// ErrInput marks input errors: unreadable files, malformed headers or
// geometry mismatches. Fatal before stage execution.
var ErrInput = errors.New("input error")
