//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip       *gpiocdev.Chip
	inputs     map[Input]*gpiocdev.Line
	outputs    map[Output]*gpiocdev.Line
	lvd        *gpiocdev.Line
	lowVoltage chan struct{}
}

// NewRealBoard requests every configured line. Keys start high (idle) and
// the power line starts enabled, matching the keypad emulator's expectations
// at power-up.
func NewRealBoard(cfg Config) (*RealBoard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gpio config: %w", err)
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{
		chip:       chip,
		inputs:     make(map[Input]*gpiocdev.Line),
		outputs:    make(map[Output]*gpiocdev.Line),
		lowVoltage: make(chan struct{}, 1),
	}

	for in, p := range cfg.InputPins() {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
		if p.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(p.Pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", in, p.Pin, err)
		}
		b.inputs[in] = line
	}

	powerOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(1)}
	if cfg.PowerActiveLow {
		powerOpts = append(powerOpts, gpiocdev.AsActiveLow)
	}
	power, err := chip.RequestLine(cfg.Power, powerOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request Power pin %d: %w", cfg.Power, err)
	}
	b.outputs[OutputPower] = power

	for out, pin := range cfg.KeyPins() {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(1))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", out, pin, err)
		}
		b.outputs[out] = line
	}

	if cfg.LVD != nil {
		line, err := chip.RequestLine(*cfg.LVD,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(b.handleLVD))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request LVD pin %d: %w", *cfg.LVD, err)
		}
		b.lvd = line
	}

	return b, nil
}

// handleLVD runs on the gpiocdev watcher goroutine. It only signals; the
// supervisor applies the status change on its own goroutine.
func (b *RealBoard) handleLVD(gpiocdev.LineEvent) {
	select {
	case b.lowVoltage <- struct{}{}:
	default:
	}
}

// LowVoltage returns the channel of low-voltage events.
func (b *RealBoard) LowVoltage() <-chan struct{} {
	return b.lowVoltage
}

// Read returns the logical level of an input.
func (b *RealBoard) Read(in Input) (bool, error) {
	line, ok := b.inputs[in]
	if !ok {
		return false, fmt.Errorf("read %s: not configured", in)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", in, err)
	}
	return v == 1, nil
}

// Write sets an output level.
func (b *RealBoard) Write(out Output, level bool) error {
	line, ok := b.outputs[out]
	if !ok {
		return fmt.Errorf("write %s: not configured", out)
	}
	v := 0
	if level {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

// Close releases GPIO resources.
// Inputs are reconfigured to input with pull-down (matching Pi boot defaults)
// and keys are left high so the keypad emulator sees no press.
func (b *RealBoard) Close() error {
	var errs []error

	for out, line := range b.outputs {
		if out != OutputPower {
			if err := line.SetValue(1); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", out, err))
			}
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", out, err))
		}
	}
	for in, line := range b.inputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", in, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", in, err))
		}
	}
	if b.lvd != nil {
		if err := b.lvd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LVD: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
