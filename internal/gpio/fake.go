package gpio

import (
	"sync"
	"time"
)

// Write records a single output change on a FakeBoard.
type Write struct {
	Output Output
	Level  bool
	At     time.Duration // FakeBoard.Now at the time of the write
}

// FakeBoard is a test double with settable input levels that records writes.
// It is safe for use from a test goroutine while a supervisor runs.
type FakeBoard struct {
	mu sync.Mutex

	levels  map[Input]bool
	outputs map[Output]bool
	writes  []Write
	reads   int

	// Now, if set, timestamps recorded writes (typically clock.Fake.Elapsed).
	Now func() time.Duration

	// OnWrite, if set, is called after every write with the lock released.
	// Tests use it to model the keypad emulator reacting to a key press.
	OnWrite func(out Output, level bool)

	// ReadError, if set, will be returned by Read()
	ReadError error

	// FailRead, if set, is consulted on every Read with the lock held; a
	// non-nil result fails that read only.
	FailRead func(in Input) error

	// WriteError, if set, will be returned by Write()
	WriteError error

	// Closed tracks if Close was called
	Closed bool

	lowVoltage chan struct{}
}

// NewFakeBoard creates a FakeBoard with the given input levels.
// Keys start high and power starts enabled, like the real board.
func NewFakeBoard(levels map[Input]bool) *FakeBoard {
	f := &FakeBoard{
		levels:     make(map[Input]bool),
		outputs:    map[Output]bool{OutputPower: true, OutputKey1: true, OutputKey2: true, OutputKey3: true},
		lowVoltage: make(chan struct{}, 1),
	}
	for in, v := range levels {
		f.levels[in] = v
	}
	return f
}

// Set changes an input level.
func (f *FakeBoard) Set(in Input, level bool) {
	f.mu.Lock()
	f.levels[in] = level
	f.mu.Unlock()
}

// Toggle inverts an input level.
func (f *FakeBoard) Toggle(in Input) {
	f.mu.Lock()
	f.levels[in] = !f.levels[in]
	f.mu.Unlock()
}

// Read returns the current level of an input.
func (f *FakeBoard) Read(in Input) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if f.FailRead != nil {
		if err := f.FailRead(in); err != nil {
			return false, err
		}
	}
	f.reads++
	return f.levels[in], nil
}

// Write records the output change.
func (f *FakeBoard) Write(out Output, level bool) error {
	f.mu.Lock()
	if f.WriteError != nil {
		err := f.WriteError
		f.mu.Unlock()
		return err
	}
	w := Write{Output: out, Level: level}
	if f.Now != nil {
		w.At = f.Now()
	}
	f.writes = append(f.writes, w)
	f.outputs[out] = level
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil {
		hook(out, level)
	}
	return nil
}

// Output returns the last level written to an output.
func (f *FakeBoard) Output(out Output) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[out]
}

// Writes returns a copy of every recorded write.
func (f *FakeBoard) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WritesTo returns the recorded writes for one output.
func (f *FakeBoard) WritesTo(out Output) []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ws []Write
	for _, w := range f.writes {
		if w.Output == out {
			ws = append(ws, w)
		}
	}
	return ws
}

// Pulses counts completed low-then-high sequences on an output.
func (f *FakeBoard) Pulses(out Output) int {
	n := 0
	low := false
	for _, w := range f.WritesTo(out) {
		if !w.Level {
			low = true
		} else if low {
			n++
			low = false
		}
	}
	return n
}

// Reads returns how many successful reads were made.
func (f *FakeBoard) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// ResetWrites discards recorded writes.
func (f *FakeBoard) ResetWrites() {
	f.mu.Lock()
	f.writes = nil
	f.mu.Unlock()
}

// TriggerLowVoltage delivers one low-voltage event, dropping it if one is
// already pending.
func (f *FakeBoard) TriggerLowVoltage() {
	select {
	case f.lowVoltage <- struct{}{}:
	default:
	}
}

// LowVoltage returns the channel of low-voltage events.
func (f *FakeBoard) LowVoltage() <-chan struct{} {
	return f.lowVoltage
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
