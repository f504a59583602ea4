// Package speech provides text-to-speech engines and voice selection.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// ErrNoEngine is returned when no usable speech engine is installed.
var ErrNoEngine = errors.New("no speech engine available")

// Voice is one installed voice.
type Voice struct {
	ID     string `json:"id"`     // Engine-specific identifier passed back to Say
	Name   string `json:"name"`   // Display name
	Locale string `json:"locale"` // BCP 47 tag, e.g. "ar-SA"
}

// Engine speaks text with a given voice.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// Voices lists the installed voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Say blocks until text has been spoken or ctx is cancelled.
	// A zero Voice uses the engine default.
	Say(ctx context.Context, text string, voice Voice) error
}

// Engine names accepted by New.
const (
	EngineAuto    = "auto"
	EngineSay     = "say"
	EngineEspeak  = "espeak-ng"
	EngineConsole = "console"
)

// New creates the named engine. "auto" picks the platform engine and falls
// back to the console when it is not installed.
func New(name string) (Engine, error) {
	switch name {
	case "", EngineAuto:
		e, err := New(defaultEngine)
		if errors.Is(err, ErrNoEngine) {
			slog.Warn("speech engine not installed, narrating to the console", "engine", defaultEngine)
			return NewConsole(os.Stdout, 0), nil
		}
		return e, err
	case EngineSay:
		bin, err := exec.LookPath("say")
		if err != nil {
			return nil, fmt.Errorf("%w: say: %w", ErrNoEngine, err)
		}
		return NewSay(bin), nil
	case EngineEspeak:
		for _, name := range []string{"espeak-ng", "espeak"} {
			if bin, err := exec.LookPath(name); err == nil {
				return NewEspeak(bin), nil
			}
		}
		return nil, fmt.Errorf("%w: espeak-ng not found", ErrNoEngine)
	case EngineConsole:
		return NewConsole(os.Stdout, 0), nil
	default:
		return nil, fmt.Errorf("unknown speech engine: %q", name)
	}
}

// Speaker picks a voice for each utterance's locale and speaks with it.
type Speaker struct {
	engine Engine

	once   sync.Once
	voices []Voice
	mu     sync.Mutex
	chosen map[string]Voice
}

// NewSpeaker creates a speaker over engine.
func NewSpeaker(engine Engine) *Speaker {
	return &Speaker{
		engine: engine,
		chosen: make(map[string]Voice),
	}
}

// Engine returns the underlying engine.
func (s *Speaker) Engine() Engine {
	return s.engine
}

// Say speaks text with the best voice for locale.
func (s *Speaker) Say(ctx context.Context, text, locale string) error {
	voice := s.voiceFor(ctx, locale)
	if err := s.engine.Say(ctx, text, voice); err != nil {
		return fmt.Errorf("%s say: %w", s.engine.Name(), err)
	}
	return nil
}

func (s *Speaker) voiceFor(ctx context.Context, locale string) Voice {
	s.once.Do(func() {
		voices, err := s.engine.Voices(ctx)
		if err != nil {
			slog.Warn("failed to list voices", "engine", s.engine.Name(), "error", err)
			return
		}
		s.voices = voices
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.chosen[locale]; ok {
		return v
	}
	v, ok := SelectVoice(s.voices, locale)
	if !ok {
		slog.Warn("no voice for locale, using engine default", "locale", locale, "engine", s.engine.Name())
	} else {
		slog.Debug("voice selected", "locale", locale, "voice", v.Name)
	}
	s.chosen[locale] = v
	return v
}
