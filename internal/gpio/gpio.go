// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Input identifies a monitored digital input.
type Input int

const (
	InputHuman  Input = iota // 2410S radar presence
	InputPhone               // secondary presence (phone home / PIR)
	InputLED1                // keypad LED1 feedback
	InputLED2                // keypad LED2 feedback
	InputLED3                // keypad LED3 feedback, diagnostics only
	InputRelay3              // Relay3 feedback
)

// Inputs lists every input in the order they are sampled.
var Inputs = []Input{InputHuman, InputPhone, InputLED1, InputLED2, InputLED3, InputRelay3}

func (i Input) String() string {
	switch i {
	case InputHuman:
		return "Human"
	case InputPhone:
		return "Phone"
	case InputLED1:
		return "LED1"
	case InputLED2:
		return "LED2"
	case InputLED3:
		return "LED3"
	case InputRelay3:
		return "Relay3"
	}
	return fmt.Sprintf("Input(%d)", int(i))
}

// Output identifies a driven digital output.
type Output int

const (
	OutputPower Output = iota // downstream supply enable
	OutputKey1
	OutputKey2
	OutputKey3
)

func (o Output) String() string {
	switch o {
	case OutputPower:
		return "Power"
	case OutputKey1:
		return "Key1"
	case OutputKey2:
		return "Key2"
	case OutputKey3:
		return "Key3"
	}
	return fmt.Sprintf("Output(%d)", int(o))
}

// Board reads and drives the digital lines.
type Board interface {
	// Read returns the logical level of an input.
	// Active-level inversion has already been applied: true = asserted.
	Read(in Input) (bool, error)

	// Write sets an output. Key outputs are raw levels (the keypad
	// emulator triggers on low); Power takes the logical enable state.
	Write(out Output, level bool) error

	// Close releases GPIO resources.
	Close() error
}

// LowVoltageSource delivers hardware low-voltage detection events.
type LowVoltageSource interface {
	LowVoltage() <-chan struct{}
}

// InputPin configures one input line.
type InputPin struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"` // asserted when the line reads 0
}

// Config describes the wiring (BCM numbering).
type Config struct {
	Chip string `yaml:"chip"`

	Human  InputPin `yaml:"human"`
	Phone  InputPin `yaml:"phone"`
	LED1   InputPin `yaml:"led1"`
	LED2   InputPin `yaml:"led2"`
	LED3   InputPin `yaml:"led3"`
	Relay3 InputPin `yaml:"relay3"`

	Power          int  `yaml:"power"`
	PowerActiveLow bool `yaml:"power_active_low"`
	Key1           int  `yaml:"key1"`
	Key2           int  `yaml:"key2"`
	Key3           int  `yaml:"key3"`

	// LVD is an optional falling-edge low-voltage detector line (nil = none).
	LVD *int `yaml:"lvd"`
}

// Pin definitions (BCM numbering)
const (
	DefaultChip      = "gpiochip0"
	DefaultPinHuman  = 17
	DefaultPinPhone  = 27
	DefaultPinLED1   = 22
	DefaultPinLED2   = 23
	DefaultPinLED3   = 24
	DefaultPinRelay3 = 25
	DefaultPinPower  = 5
	DefaultPinKey1   = 6
	DefaultPinKey2   = 13
	DefaultPinKey3   = 19
)

// DefaultConfig returns the reference wiring with every input active-high.
func DefaultConfig() Config {
	return Config{
		Chip:   DefaultChip,
		Human:  InputPin{Pin: DefaultPinHuman},
		Phone:  InputPin{Pin: DefaultPinPhone},
		LED1:   InputPin{Pin: DefaultPinLED1},
		LED2:   InputPin{Pin: DefaultPinLED2},
		LED3:   InputPin{Pin: DefaultPinLED3},
		Relay3: InputPin{Pin: DefaultPinRelay3},
		Power:  DefaultPinPower,
		Key1:   DefaultPinKey1,
		Key2:   DefaultPinKey2,
		Key3:   DefaultPinKey3,
	}
}

// InputPins maps each input to its configured pin.
func (c Config) InputPins() map[Input]InputPin {
	return map[Input]InputPin{
		InputHuman:  c.Human,
		InputPhone:  c.Phone,
		InputLED1:   c.LED1,
		InputLED2:   c.LED2,
		InputLED3:   c.LED3,
		InputRelay3: c.Relay3,
	}
}

// KeyPins maps each key output to its configured pin.
func (c Config) KeyPins() map[Output]int {
	return map[Output]int{
		OutputKey1: c.Key1,
		OutputKey2: c.Key2,
		OutputKey3: c.Key3,
	}
}

// Validate reports duplicate or negative pin assignments.
func (c Config) Validate() error {
	seen := make(map[int]string)
	claim := func(pin int, name string) error {
		if pin < 0 {
			return fmt.Errorf("%s: invalid pin %d", name, pin)
		}
		if other, ok := seen[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", name, pin, other)
		}
		seen[pin] = name
		return nil
	}
	for _, in := range Inputs {
		if err := claim(c.InputPins()[in].Pin, in.String()); err != nil {
			return err
		}
	}
	for _, out := range []Output{OutputPower, OutputKey1, OutputKey2, OutputKey3} {
		pin := c.Power
		if out != OutputPower {
			pin = c.KeyPins()[out]
		}
		if err := claim(pin, out.String()); err != nil {
			return err
		}
	}
	if c.LVD != nil {
		if err := claim(*c.LVD, "LVD"); err != nil {
			return err
		}
	}
	return nil
}
