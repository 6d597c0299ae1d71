//go:build !linux

package watchdog

import (
	"errors"
	"time"
)

// Device is not available on non-Linux platforms.
type Device struct{}

// Open returns an error on non-Linux platforms.
func Open(path string, timeout time.Duration) (*Device, error) {
	return nil, errors.New("watchdog: not supported on this platform (requires Linux)")
}

// Feed is not implemented on non-Linux platforms.
func (d *Device) Feed() error {
	return errors.New("watchdog: not supported")
}

// Timeout returns zero on non-Linux platforms.
func (d *Device) Timeout() time.Duration { return 0 }

// Close is a no-op on non-Linux platforms.
func (d *Device) Close() error { return nil }
