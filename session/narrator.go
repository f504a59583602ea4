package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// ErrSpeaking is returned when an utterance is dropped because another one
// is still audible.
var ErrSpeaking = errors.New("narrator is speaking")

// NarrationRequest is one utterance.
type NarrationRequest struct {
	Text   string
	Locale string // BCP 47 tag, e.g. "ar-SA"; empty uses the narrator default
}

// Speaker plays text through a speech engine. Say blocks until playback
// finishes or ctx is cancelled.
type Speaker interface {
	Say(ctx context.Context, text, locale string) error
}

// Narrator serializes speech so that at most one utterance is audible.
// Requests that arrive while speaking are dropped, not queued.
type Narrator struct {
	speaker Speaker
	locale  string

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNarrator creates a narrator. locale is used for requests that carry none.
func NewNarrator(speaker Speaker, locale string) *Narrator {
	return &Narrator{
		speaker: speaker,
		locale:  locale,
	}
}

// Locale returns the default locale.
func (n *Narrator) Locale() string {
	return n.locale
}

// TrySpeak starts req in the background. It returns false, without side
// effects, if another utterance is in flight or the text is blank.
func (n *Narrator) TrySpeak(req NarrationRequest) bool {
	ctx, done, ok := n.claim(context.Background(), req)
	if !ok {
		return false
	}
	go n.play(ctx, req, done)
	return true
}

// Speak plays req and blocks until it finishes. It returns ErrSpeaking if
// the request was dropped.
func (n *Narrator) Speak(ctx context.Context, req NarrationRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return nil
	}
	ctx, done, ok := n.claim(ctx, req)
	if !ok {
		return ErrSpeaking
	}
	return n.play(ctx, req, done)
}

// Preempt stops the current utterance, waits for it to go silent, then
// starts req in the background.
func (n *Narrator) Preempt(req NarrationRequest) {
	if strings.TrimSpace(req.Text) == "" {
		return
	}
	for {
		n.mu.Lock()
		if !n.speaking {
			n.mu.Unlock()
			break
		}
		n.cancel()
		done := n.done
		n.mu.Unlock()
		<-done
	}
	if !n.TrySpeak(req) {
		// Another caller claimed the flag between the wait and the claim.
		slog.Debug("narration preempted by concurrent request", "text", req.Text)
	}
}

// Speaking reports whether an utterance is in flight.
func (n *Narrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.speaking
}

// Wait blocks until the current utterance, if any, has finished.
func (n *Narrator) Wait() {
	n.mu.Lock()
	if !n.speaking {
		n.mu.Unlock()
		return
	}
	done := n.done
	n.mu.Unlock()
	<-done
}

// Stop silences the current utterance without waiting.
func (n *Narrator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.speaking {
		n.cancel()
	}
}

func (n *Narrator) claim(parent context.Context, req NarrationRequest) (context.Context, chan struct{}, bool) {
	if n.speaker == nil || strings.TrimSpace(req.Text) == "" {
		return nil, nil, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.speaking {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	n.speaking = true
	n.cancel = cancel
	n.done = make(chan struct{})
	return ctx, n.done, true
}

func (n *Narrator) play(ctx context.Context, req NarrationRequest, done chan struct{}) error {
	defer func() {
		n.mu.Lock()
		n.cancel()
		n.speaking = false
		n.mu.Unlock()
		close(done)
	}()

	locale := req.Locale
	if locale == "" {
		locale = n.locale
	}

	err := n.speaker.Say(ctx, req.Text, locale)
	if err != nil && ctx.Err() == nil {
		slog.Warn("narration failed", "error", err, "locale", locale)
		return err
	}
	return nil
}
