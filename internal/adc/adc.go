// Package adc provides supply voltage measurement.
//
// VCC is measured indirectly: the ADC, referenced to VCC, samples a fixed
// internal bandgap. The lower the supply, the higher the raw reading.
package adc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultRefMillivolts is the internal bandgap reference voltage.
	DefaultRefMillivolts = 1190

	// Resolution is the ADC full-scale count (12 bit).
	Resolution = 4096

	// DefaultIIOPath is the sysfs attribute holding the bandgap channel's raw reading.
	DefaultIIOPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"
)

// ErrUnavailable is returned when no usable reading could be taken.
var ErrUnavailable = errors.New("adc: reading unavailable")

// Reader reads the supply voltage.
type Reader interface {
	// ReadVCCMillivolts blocks until a conversion completes. A zero value
	// means "unavailable" and must not be treated as a real low voltage.
	ReadVCCMillivolts() (uint16, error)
}

// MillivoltsFromRaw converts a raw bandgap reading to VCC in millivolts.
// A zero raw reading yields 0 (unavailable). Results are clamped to 65535.
func MillivoltsFromRaw(raw, refMillivolts uint16) uint16 {
	if raw == 0 {
		return 0
	}
	mv := uint32(refMillivolts) * Resolution / uint32(raw)
	if mv > 0xFFFF {
		return 0xFFFF
	}
	return uint16(mv)
}

// IIO reads the bandgap channel through the Linux industrial I/O sysfs interface.
type IIO struct {
	path   string
	refMV  uint16
	readFn func(string) ([]byte, error)
}

// NewIIO creates a reader for the given sysfs raw attribute.
func NewIIO(path string, refMillivolts uint16) *IIO {
	if path == "" {
		path = DefaultIIOPath
	}
	if refMillivolts == 0 {
		refMillivolts = DefaultRefMillivolts
	}
	return &IIO{path: path, refMV: refMillivolts, readFn: os.ReadFile}
}

// ReadVCCMillivolts implements Reader.
func (r *IIO) ReadVCCMillivolts() (uint16, error) {
	data, err := r.readFn(r.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r.path, err)
	}
	raw, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", r.path, err)
	}
	if raw >= Resolution {
		return 0, fmt.Errorf("raw reading %d out of range", raw)
	}
	mv := MillivoltsFromRaw(uint16(raw), r.refMV)
	if mv == 0 {
		return 0, ErrUnavailable
	}
	return mv, nil
}
