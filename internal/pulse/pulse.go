// Package pulse drives momentary active-low key presses on the keypad emulator.
package pulse

import (
	"fmt"
	"time"

	"github.com/sweeney/keypad-sync/internal/clock"
	"github.com/sweeney/keypad-sync/internal/gpio"
)

// DefaultWidth is how long a key is held low.
const DefaultWidth = 50 * time.Millisecond

// Writer drives output lines. gpio.Board satisfies it.
type Writer interface {
	Write(out gpio.Output, level bool) error
}

// Emitter produces one low pulse per call and blocks for its duration.
type Emitter struct {
	w     Writer
	sleep clock.Sleeper
	width time.Duration
}

// New creates an Emitter. A zero width selects DefaultWidth.
func New(w Writer, sleep clock.Sleeper, width time.Duration) *Emitter {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Emitter{w: w, sleep: sleep, width: width}
}

// Width returns the low-phase duration.
func (e *Emitter) Width() time.Duration {
	return e.width
}

// Emit drives out low, waits the pulse width, then drives it high again.
// Nothing checks that the downstream device reacted.
func (e *Emitter) Emit(out gpio.Output) error {
	if err := e.w.Write(out, false); err != nil {
		return fmt.Errorf("pulse %s low: %w", out, err)
	}
	e.sleep.Sleep(e.width)
	if err := e.w.Write(out, true); err != nil {
		return fmt.Errorf("pulse %s release: %w", out, err)
	}
	return nil
}
