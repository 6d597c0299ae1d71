package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeSleepAdvances(t *testing.T) {
	var f Fake

	f.Sleep(10 * time.Millisecond)
	f.Sleep(50 * time.Millisecond)
	f.Sleep(10 * time.Millisecond)

	assert.Equal(t, 70*time.Millisecond, f.Elapsed())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 10 * time.Millisecond}, f.Sleeps())
	assert.Equal(t, 2, f.Count(10*time.Millisecond))
	assert.Equal(t, 0, f.Count(time.Second))
}

func TestRealSleepBlocks(t *testing.T) {
	start := time.Now()
	Real{}.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
