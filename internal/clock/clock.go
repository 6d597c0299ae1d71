// Package clock abstracts blocking delays so timing-dependent loops can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Sleeper blocks the caller for at least the requested duration.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Real sleeps using the runtime timer.
type Real struct{}

// Sleep implements Sleeper.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fake records sleeps and advances a virtual clock instead of blocking.
type Fake struct {
	mu      sync.Mutex
	elapsed time.Duration
	sleeps  []time.Duration
}

// Sleep advances the virtual clock by d.
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.elapsed += d
	f.sleeps = append(f.sleeps, d)
	f.mu.Unlock()
}

// Elapsed returns the total virtual time slept.
func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elapsed
}

// Sleeps returns a copy of every requested duration, in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// Count returns how many times Sleep was called with exactly d.
func (f *Fake) Count(d time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sleeps {
		if s == d {
			n++
		}
	}
	return n
}
