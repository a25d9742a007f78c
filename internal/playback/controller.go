// Package playback drives timed frame stepping over heatmap datasets and
// owns the per-client session state around it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrNotPlayable is returned when playback controls are used on a dataset
// with one frame or fewer, where there is nothing to step through.
var ErrNotPlayable = errors.New("playback requires more than one frame")

// FrameEvent announces that the current frame changed.
type FrameEvent struct {
	Index int    `json:"index"`
	Week  string `json:"week"`
}

// Controller is the playback state machine: Stopped or Playing. While
// playing, a ticker at baseInterval/speed advances the frame index,
// wrapping past the last frame and looping indefinitely.
//
// The "at most one active ticker" invariant is structural: every
// transition into Playing goes through stop() first, which cancels the
// previous ticker loop and waits for it to exit. A run generation guards
// against a stale tick that was already in flight when the loop was
// cancelled.
type Controller struct {
	clock        clockwork.Clock
	baseInterval time.Duration
	weeks        []string
	notify       func(FrameEvent) // tick-driven frame changes only

	mu      sync.Mutex
	index   int
	speed   float64
	playing bool
	runGen  uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates a stopped controller at frame 0, speed 1. notify
// is invoked (off the caller's goroutine) for every tick-driven advance;
// it may be nil.
func NewController(weeks []string, baseInterval time.Duration, clk clockwork.Clock, notify func(FrameEvent)) *Controller {
	if notify == nil {
		notify = func(FrameEvent) {}
	}
	return &Controller{
		clock:        clk,
		baseInterval: baseInterval,
		weeks:        weeks,
		notify:       notify,
		speed:        1,
	}
}

// FrameCount returns the number of frames under control.
func (c *Controller) FrameCount() int { return len(c.weeks) }

// Playable reports whether playback controls are enabled.
func (c *Controller) Playable() bool { return len(c.weeks) > 1 }

// State returns the current frame index, playing flag, and speed.
func (c *Controller) State() (index int, playing bool, speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index, c.playing, c.speed
}

// Play transitions to Playing. Any existing ticker is cancelled first, so
// calling Play twice leaves exactly one ticker running.
func (c *Controller) Play() error {
	if !c.Playable() {
		return ErrNotPlayable
	}
	c.stop()

	c.mu.Lock()
	c.playing = true
	c.runGen++
	gen := c.runGen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	interval := time.Duration(float64(c.baseInterval) / c.speed)
	c.mu.Unlock()

	go c.run(ctx, gen, interval, done)
	return nil
}

// Pause transitions to Stopped. Safe to call when already stopped.
func (c *Controller) Pause() {
	c.stop()
}

// SetSpeed updates the playback speed multiplier. While playing, the
// ticker restarts at the new interval rather than keep ticking at the
// stale one.
func (c *Controller) SetSpeed(multiplier float64) error {
	if !c.Playable() {
		return ErrNotPlayable
	}
	if multiplier <= 0 {
		return fmt.Errorf("invalid speed multiplier %g", multiplier)
	}

	c.mu.Lock()
	c.speed = multiplier
	playing := c.playing
	c.mu.Unlock()

	if playing {
		return c.Play()
	}
	return nil
}

// Seek moves to a frame, clamping out-of-range indexes into bounds. It
// never touches a running ticker; the caller broadcasts the returned
// event. Valid in both states.
func (c *Controller) Seek(index int) FrameEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.weeks) == 0 {
		return FrameEvent{}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(c.weeks) {
		index = len(c.weeks) - 1
	}
	c.index = index
	return FrameEvent{Index: index, Week: c.weeks[index]}
}

// stop cancels the active ticker loop, waits for it to exit, and bumps
// the run generation so in-flight ticks are discarded.
func (c *Controller) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.playing = false
	c.runGen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Controller) run(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			ev, ok := c.advance(gen)
			if !ok {
				return
			}
			c.notify(ev)
		}
	}
}

// advance moves to the next frame, wrapping to 0 after the last. A tick
// from a superseded loop generation is a no-op.
func (c *Controller) advance(gen uint64) (FrameEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.runGen || !c.playing {
		return FrameEvent{}, false
	}
	c.index = (c.index + 1) % len(c.weeks)
	return FrameEvent{Index: c.index, Week: c.weeks[c.index]}, true
}
