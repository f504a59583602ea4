package session

import (
	"sync"
	"time"
)

// DefaultGestureWindow is the tap coalescing window.
const DefaultGestureWindow = 600 * time.Millisecond

// GestureCommand is a mode selection recognized from taps.
type GestureCommand int

const (
	ActivateDetecting GestureCommand = iota + 1
	ActivateReading
)

func (c GestureCommand) String() string {
	switch c {
	case ActivateDetecting:
		return "activate-detecting"
	case ActivateReading:
		return "activate-reading"
	default:
		return "none"
	}
}

// TapEvent is a single user tap.
type TapEvent struct {
	Timestamp time.Time
}

// GestureRecognizer turns taps into double-tap and triple-tap commands.
//
// A double tap is not committed until the window has elapsed after the
// second tap; a third tap in the meantime turns it into a triple tap.
type GestureRecognizer struct {
	window time.Duration
	emit   func(GestureCommand)

	mu      sync.Mutex
	taps    []time.Time
	pending *time.Timer
	gen     uint64 // Invalidates timers that lost a race with a newer tap
}

// NewGestureRecognizer creates a recognizer that calls emit for every
// recognized gesture. emit runs without any recognizer lock held, either on
// the caller of OnTap or on a timer goroutine.
func NewGestureRecognizer(window time.Duration, emit func(GestureCommand)) *GestureRecognizer {
	if window <= 0 {
		window = DefaultGestureWindow
	}
	return &GestureRecognizer{
		window: window,
		emit:   emit,
		taps:   make([]time.Time, 0, 3),
	}
}

// Window returns the coalescing window.
func (g *GestureRecognizer) Window() time.Duration {
	return g.window
}

// Tap records a tap at the current time.
func (g *GestureRecognizer) Tap() {
	g.OnTap(time.Now())
}

// OnTap records a tap that happened at ts.
func (g *GestureRecognizer) OnTap(ts time.Time) {
	g.mu.Lock()

	g.evict(ts)
	g.taps = append(g.taps, ts)

	// A tap while a double tap is pending always upgrades it.
	if g.pending != nil || len(g.taps) >= 3 {
		g.clearLocked()
		g.mu.Unlock()
		g.fire(ActivateReading)
		return
	}

	if len(g.taps) == 2 {
		g.gen++
		gen := g.gen
		g.pending = time.AfterFunc(g.window, func() { g.commitDouble(gen) })
	}
	g.mu.Unlock()
}

// Pending reports whether a double tap is waiting for its debounce delay.
func (g *GestureRecognizer) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Reset discards buffered taps and any pending decision.
func (g *GestureRecognizer) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearLocked()
}

func (g *GestureRecognizer) commitDouble(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.pending == nil {
		g.mu.Unlock()
		return
	}
	g.pending = nil
	g.taps = g.taps[:0]
	g.mu.Unlock()

	g.fire(ActivateDetecting)
}

// evict drops taps that are at least one window older than now.
func (g *GestureRecognizer) evict(now time.Time) {
	n := 0
	for _, t := range g.taps {
		if now.Sub(t) < g.window {
			g.taps[n] = t
			n++
		}
	}
	g.taps = g.taps[:n]
}

func (g *GestureRecognizer) clearLocked() {
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	g.gen++
	g.taps = g.taps[:0]
}

func (g *GestureRecognizer) fire(cmd GestureCommand) {
	if g.emit != nil {
		g.emit(cmd)
	}
}
