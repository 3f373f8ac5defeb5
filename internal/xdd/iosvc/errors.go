package iosvc

import "errors"

// ErrUnsupported is returned by capability methods the current platform or
// handle configuration cannot provide (e.g. SGIO on a plain file, Direct
// I/O alignment restore on an unaligned op).
var ErrUnsupported = errors.New("iosvc: unsupported on this platform/handle")

// ErrShortIO is returned when a pread/pwrite transfers fewer bytes than
// requested; partial success is treated as an error condition that
// triggers the worker's retry policy.
var ErrShortIO = errors.New("iosvc: short I/O")
