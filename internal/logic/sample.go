// Package logic contains the pure decision logic for keypad synchronization:
// rule evaluation, change detection and voltage classification.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
package logic

import "strings"

// Sample is one reading of the monitored inputs (logical levels).
type Sample struct {
	Human  bool // presence radar
	Phone  bool // secondary presence
	LED1   bool
	LED2   bool
	LED3   bool // diagnostics only, never compared
	Relay3 bool // true = open
}

// Changes records which monitored signals differ between two samples.
type Changes struct {
	Human  bool
	Phone  bool
	LED1   bool
	LED2   bool
	Relay3 bool
}

// Diff compares the previous snapshot with the current sample.
func Diff(prev, cur Sample) Changes {
	return Changes{
		Human:  prev.Human != cur.Human,
		Phone:  prev.Phone != cur.Phone,
		LED1:   prev.LED1 != cur.LED1,
		LED2:   prev.LED2 != cur.LED2,
		Relay3: prev.Relay3 != cur.Relay3,
	}
}

// Group reports whether any signal belonging to k's group changed.
// Key1: Human or LED1. Key2: Phone or LED2. Key3: Relay3.
func (c Changes) Group(k Key) bool {
	switch k {
	case Key1:
		return c.Human || c.LED1
	case Key2:
		return c.Phone || c.LED2
	case Key3:
		return c.Relay3
	}
	return false
}

// Any reports whether any monitored signal changed.
func (c Changes) Any() bool {
	return c.Group(Key1) || c.Group(Key2) || c.Group(Key3)
}

// Names lists the changed signals of k's group, e.g. "Human LED1".
func (c Changes) Names(k Key) string {
	var names []string
	switch k {
	case Key1:
		if c.Human {
			names = append(names, "Human")
		}
		if c.LED1 {
			names = append(names, "LED1")
		}
	case Key2:
		if c.Phone {
			names = append(names, "Phone")
		}
		if c.LED2 {
			names = append(names, "LED2")
		}
	case Key3:
		if c.Relay3 {
			names = append(names, "Relay3")
		}
	}
	return strings.Join(names, " ")
}

// Commit copies k's group signals from cur into the snapshot.
func (s *Sample) Commit(k Key, cur Sample) {
	switch k {
	case Key1:
		s.Human, s.LED1 = cur.Human, cur.LED1
	case Key2:
		s.Phone, s.LED2 = cur.Phone, cur.LED2
	case Key3:
		s.Relay3 = cur.Relay3
	}
}
