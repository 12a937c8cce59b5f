//go:build !windows

// Package windows hosts the binary as a Windows service. On other
// platforms it reports that no service manager is present.
package windows

import (
	"context"
	"errors"
)

var ErrNotSupported = errors.New("windows service not supported on this platform")

func RunAsService(name string, stop context.CancelFunc) error {
	return ErrNotSupported
}

func IsWindowsService() bool {
	return false
}
