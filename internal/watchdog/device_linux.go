//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Device is an armed Linux watchdog. Opening the device starts the countdown.
type Device struct {
	f       *os.File
	timeout time.Duration
}

// Open arms the watchdog at path and programs the timeout (rounded to whole
// seconds). The driver may clamp the value; Timeout reports what it accepted.
func Open(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog %s: %w", path, err)
	}
	fd := int(f.Fd())

	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(fd, unix.WDIOC_SETTIMEOUT, secs); err != nil {
		f.Close()
		return nil, fmt.Errorf("set watchdog timeout %ds: %w", secs, err)
	}
	got, err := unix.IoctlGetInt(fd, unix.WDIOC_GETTIMEOUT)
	if err != nil {
		got = secs
	}

	return &Device{f: f, timeout: time.Duration(got) * time.Second}, nil
}

// Feed implements Feeder.
func (d *Device) Feed() error {
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		return fmt.Errorf("watchdog keepalive: %w", err)
	}
	return nil
}

// Timeout returns the expiry accepted by the driver.
func (d *Device) Timeout() time.Duration {
	return d.timeout
}

// Close disarms the watchdog with the magic close character, so a clean
// shutdown does not reboot the device.
func (d *Device) Close() error {
	if _, err := d.f.Write([]byte("V")); err != nil {
		d.f.Close()
		return fmt.Errorf("watchdog magic close: %w", err)
	}
	return d.f.Close()
}
