package core

import (
	"sync/atomic"
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	return &Time{
		fps:       cfg.FramesPerSecond,
		interval:  interval,
		fpsTicker: time.NewTicker(interval),
		start:     time.Now(),
	}
}

// Time paces compositor frames
type Time struct {
	fps       int
	interval  time.Duration
	fpsTicker *time.Ticker
	start     time.Time
	frames    uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// Interval is the time budget of one frame
func (t *Time) Interval() time.Duration {
	return t.interval
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// Frame counts a frame and returns its number, starting at 1
func (t *Time) Frame() uint64 {
	return atomic.AddUint64(&t.frames, 1)
}

// Frames returns the number of frames counted
func (t *Time) Frames() uint64 {
	return atomic.LoadUint64(&t.frames)
}

// Elapsed returns the time since the service was created
func (t *Time) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop stops the ticker
func (t *Time) Stop() {
	t.fpsTicker.Stop()
}
