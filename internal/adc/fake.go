package adc

import (
	"errors"
	"sync"
)

// FakeReader returns scripted millivolt readings.
type FakeReader struct {
	mu sync.Mutex

	// Values contains scripted readings. Each call consumes the next value;
	// once exhausted the last value repeats.
	Values []uint16

	// Err, if set, will be returned by ReadVCCMillivolts.
	Err error

	index int
	reads int
}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(values ...uint16) *FakeReader {
	return &FakeReader{Values: values}
}

// ReadVCCMillivolts returns the next scripted reading.
func (f *FakeReader) ReadVCCMillivolts() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no readings configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script with a single repeating reading.
func (f *FakeReader) Set(mv uint16) {
	f.mu.Lock()
	f.Values = []uint16{mv}
	f.index = 0
	f.mu.Unlock()
}

// Reads returns how many times ReadVCCMillivolts was called.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
