package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, 1, fired, "one-shot timers fire once")
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	c := Fake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, tm.Stop())
	require.False(t, tm.Stop())
	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFake_CallbackCanReschedule(t *testing.T) {
	c := Fake(epoch)
	var times []time.Time
	var schedule func()
	schedule = func() {
		times = append(times, c.Now())
		if len(times) < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)

	c.Advance(10 * time.Second)
	require.Len(t, times, 3)
	assert.Equal(t, epoch.Add(3*time.Second), times[2])
}

func TestFake_TickerDeliversAndStops(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(30 * time.Second)

	c.Advance(30 * time.Second)
	select {
	case got := <-tk.C:
		assert.Equal(t, epoch.Add(30*time.Second), got)
	default:
		t.Fatal("expected a tick")
	}

	tk.Stop()
	c.Advance(time.Minute)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker must not tick")
	default:
	}
}

func TestFake_NewTickerPanicsOnZero(t *testing.T) {
	require.Panics(t, func() { Fake(epoch).NewTicker(0) })
}
