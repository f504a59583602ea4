// Package hotkey listens for a global key that acts as the tap input.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	hook "github.com/robotn/gohook"
)

// ErrRunning is returned by Start when the listener is already running.
var ErrRunning = errors.New("hotkey listener already running")

// ParseKey maps a key name from the configuration to the character gohook
// reports for it. Single characters stand for themselves.
func ParseKey(name string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "space":
		return ' ', nil
	case "enter", "return":
		return '\r', nil
	case "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return r, nil
	}
	return 0, fmt.Errorf("unsupported tap key: %q", name)
}

// TapListener turns presses of one global key into taps.
// Auto-repeat while the key is held counts as a single tap.
type TapListener struct {
	key   rune
	onTap func(time.Time)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewTapListener creates a listener for key that calls onTap on every press.
func NewTapListener(key rune, onTap func(time.Time)) *TapListener {
	return &TapListener{key: key, onTap: onTap}
}

// Start installs the global hook. The hook needs accessibility permission
// on macOS and an X11 session on Linux.
func (l *TapListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrRunning
	}

	events := hook.Start()
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.loop(events, l.stop, l.done)

	slog.Info("tap hotkey registered", "key", fmt.Sprintf("%q", l.key))
	return nil
}

// Stop removes the hook.
func (l *TapListener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	<-done
	hook.End()
}

func (l *TapListener) loop(events chan hook.Event, stop, done chan struct{}) {
	defer close(done)
	var held uint16
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if tap, ok := l.filter(ev, &held); ok {
				l.onTap(tap)
			}
		}
	}
}

// filter reports whether ev is a new press of the tap key. held carries
// the raw code of the key while it is down.
func (l *TapListener) filter(ev hook.Event, held *uint16) (time.Time, bool) {
	switch ev.Kind {
	case hook.KeyDown:
		if ev.Keychar != l.key || *held != 0 {
			return time.Time{}, false
		}
		*held = ev.Rawcode
		if *held == 0 {
			*held = 1
		}
		when := ev.When
		if when.IsZero() {
			when = time.Now()
		}
		return when, true
	case hook.KeyUp:
		if *held != 0 && (ev.Rawcode == *held || *held == 1) {
			*held = 0
		}
	}
	return time.Time{}, false
}
