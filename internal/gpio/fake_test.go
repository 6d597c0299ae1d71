package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeBoardRead(t *testing.T) {
	f := NewFakeBoard(map[Input]bool{InputHuman: true, InputLED1: false})

	on, err := f.Read(InputHuman)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !on {
		t.Error("Human: expected true")
	}

	on, err = f.Read(InputLED1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if on {
		t.Error("LED1: expected false")
	}

	// Unset inputs read low
	on, _ = f.Read(InputRelay3)
	if on {
		t.Error("Relay3: expected false for unset input")
	}

	if f.Reads() != 3 {
		t.Errorf("expected 3 reads, got %d", f.Reads())
	}
}

func TestFakeBoardSetAndToggle(t *testing.T) {
	f := NewFakeBoard(nil)

	f.Set(InputPhone, true)
	if on, _ := f.Read(InputPhone); !on {
		t.Error("after Set: expected true")
	}

	f.Toggle(InputPhone)
	if on, _ := f.Read(InputPhone); on {
		t.Error("after Toggle: expected false")
	}
}

func TestFakeBoardInitialOutputs(t *testing.T) {
	f := NewFakeBoard(nil)

	for _, out := range []Output{OutputPower, OutputKey1, OutputKey2, OutputKey3} {
		if !f.Output(out) {
			t.Errorf("%s: expected initial high", out)
		}
	}
	if len(f.Writes()) != 0 {
		t.Errorf("expected no recorded writes, got %d", len(f.Writes()))
	}
}

func TestFakeBoardWritesAndPulses(t *testing.T) {
	f := NewFakeBoard(nil)
	var now time.Duration
	f.Now = func() time.Duration { return now }

	f.Write(OutputKey1, false)
	now = 50 * time.Millisecond
	f.Write(OutputKey1, true)
	f.Write(OutputKey2, false)

	ws := f.WritesTo(OutputKey1)
	if len(ws) != 2 {
		t.Fatalf("expected 2 Key1 writes, got %d", len(ws))
	}
	if ws[0].Level || ws[0].At != 0 {
		t.Errorf("write 0: got %+v", ws[0])
	}
	if !ws[1].Level || ws[1].At != 50*time.Millisecond {
		t.Errorf("write 1: got %+v", ws[1])
	}

	if n := f.Pulses(OutputKey1); n != 1 {
		t.Errorf("Key1 pulses: got %d, want 1", n)
	}
	// Key2 is still low: not a completed pulse
	if n := f.Pulses(OutputKey2); n != 0 {
		t.Errorf("Key2 pulses: got %d, want 0", n)
	}
	if f.Output(OutputKey2) {
		t.Error("Key2: expected low")
	}

	f.ResetWrites()
	if len(f.Writes()) != 0 {
		t.Error("expected writes cleared")
	}
}

func TestFakeBoardOnWrite(t *testing.T) {
	f := NewFakeBoard(nil)
	f.OnWrite = func(out Output, level bool) {
		if out == OutputKey1 && !level {
			f.Toggle(InputLED1)
		}
	}

	f.Write(OutputKey1, false)
	f.Write(OutputKey1, true)

	if on, _ := f.Read(InputLED1); !on {
		t.Error("expected LED1 toggled by key press")
	}
}

func TestFakeBoardErrors(t *testing.T) {
	f := NewFakeBoard(nil)
	f.ReadError = errors.New("simulated read error")
	f.WriteError = errors.New("simulated write error")

	if _, err := f.Read(InputHuman); err == nil || err.Error() != "simulated read error" {
		t.Errorf("unexpected read error: %v", err)
	}
	if err := f.Write(OutputKey1, false); err == nil || err.Error() != "simulated write error" {
		t.Errorf("unexpected write error: %v", err)
	}
	if len(f.Writes()) != 0 {
		t.Error("failed write should not be recorded")
	}
}

func TestFakeBoardFailRead(t *testing.T) {
	f := NewFakeBoard(map[Input]bool{InputHuman: true})
	f.FailRead = func(in Input) error {
		if in == InputLED3 {
			return errors.New("line released")
		}
		return nil
	}

	if _, err := f.Read(InputLED3); err == nil {
		t.Error("expected LED3 read to fail")
	}
	if on, err := f.Read(InputHuman); err != nil || !on {
		t.Errorf("Human: got %v, %v; want true, nil", on, err)
	}
	if f.Reads() != 1 {
		t.Errorf("expected 1 successful read, got %d", f.Reads())
	}
}

func TestFakeBoardLowVoltage(t *testing.T) {
	f := NewFakeBoard(nil)

	f.TriggerLowVoltage()
	f.TriggerLowVoltage() // coalesced

	select {
	case <-f.LowVoltage():
	default:
		t.Fatal("expected a pending low-voltage event")
	}
	select {
	case <-f.LowVoltage():
		t.Fatal("expected events to coalesce")
	default:
	}
}

func TestFakeBoardClose(t *testing.T) {
	f := NewFakeBoard(nil)

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
