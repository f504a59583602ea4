package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// macOS say
// ─────────────────────────────────────────────────────────────────────────────

// Say speaks with the macOS say command.
type Say struct {
	bin string
}

// NewSay creates a say engine using bin.
func NewSay(bin string) *Say {
	return &Say{bin: bin}
}

func (s *Say) Name() string { return EngineSay }

func (s *Say) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, s.bin, "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("list say voices: %w", err)
	}
	return parseSayVoices(out), nil
}

func (s *Say) Say(ctx context.Context, text string, voice Voice) error {
	var args []string
	if voice.ID != "" {
		args = append(args, "-v", voice.ID)
	}
	// Text goes through stdin so it is never parsed as a flag.
	return run(ctx, text, s.bin, args...)
}

// sayVoiceLine matches "Majed               ar_SA    # مرحبًا! اسمي ماجد."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-zA-Z]{2,3}(?:[_-][A-Za-z0-9]+)+)\s+#`)

func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, Voice{
			ID:     name,
			Name:   name,
			Locale: strings.ReplaceAll(m[2], "_", "-"),
		})
	}
	return voices
}

// ─────────────────────────────────────────────────────────────────────────────
// espeak-ng
// ─────────────────────────────────────────────────────────────────────────────

// Espeak speaks with espeak-ng.
type Espeak struct {
	bin string
}

// NewEspeak creates an espeak-ng engine using bin.
func NewEspeak(bin string) *Espeak {
	return &Espeak{bin: bin}
}

func (e *Espeak) Name() string { return EngineEspeak }

func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.bin, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("list espeak voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

func (e *Espeak) Say(ctx context.Context, text string, voice Voice) error {
	args := []string{"--stdin"}
	if voice.ID != "" {
		args = append(args, "-v", voice.ID)
	}
	return run(ctx, text, e.bin, args...)
}

// parseEspeakVoices reads the table printed by "espeak-ng --voices":
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  ar              --/M      Arabic             sem/ar
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		voices = append(voices, Voice{
			ID:     fields[1],
			Name:   fields[3],
			Locale: fields[1],
		})
	}
	return voices
}

func run(ctx context.Context, text, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}
	return nil
}
