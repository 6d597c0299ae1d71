// Package watchdog feeds the hardware watchdog. A missed feed for longer
// than the configured timeout restarts the device.
package watchdog

import (
	"sync"
	"time"
)

const (
	// DefaultDevice is the Linux watchdog character device.
	DefaultDevice = "/dev/watchdog"

	// DefaultTimeout is the expiry programmed into the device.
	DefaultTimeout = 8 * time.Second
)

// Feeder resets the hardware expiry countdown.
type Feeder interface {
	Feed() error
}

// Noop is used when the watchdog is disabled.
type Noop struct{}

// Feed implements Feeder.
func (Noop) Feed() error { return nil }

// Fake counts feeds for test assertions.
type Fake struct {
	mu    sync.Mutex
	feeds int

	// Err, if set, will be returned by Feed (the feed is still counted).
	Err error
}

// Feed implements Feeder.
func (f *Fake) Feed() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds++
	return f.Err
}

// Feeds returns the number of Feed calls.
func (f *Fake) Feeds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeds
}
