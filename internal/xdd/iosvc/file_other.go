//go:build !windows && !linux

// Fallback for BSD/Darwin: no O_DIRECT, no SGIO ioctl, best-effort
// preallocate via Truncate.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package iosvc

import "os"

func directFlag() int { return 0 }

func preallocate(f *os.File, size int64) {
	fi, err := f.Stat()
	if err != nil {
		return
	}
	if fi.Size() < size {
		_ = f.Truncate(size)
	}
}

func openSGIO(path string, opts OpenOptions) (Handle, error) {
	return nil, ErrUnsupported
}
