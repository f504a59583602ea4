package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Console writes utterances to a writer instead of speaking them.
// It holds each utterance for roughly the time it would take to say it, so
// that narration overlap behaves as with a real engine.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	perWord time.Duration
}

// NewConsole creates a console engine. A zero perWord uses 150 words per minute.
func NewConsole(w io.Writer, perWord time.Duration) *Console {
	if perWord <= 0 {
		perWord = 400 * time.Millisecond
	}
	return &Console{w: w, perWord: perWord}
}

func (c *Console) Name() string { return EngineConsole }

func (c *Console) Voices(ctx context.Context) ([]Voice, error) {
	return nil, nil
}

func (c *Console) Say(ctx context.Context, text string, voice Voice) error {
	c.mu.Lock()
	_, err := fmt.Fprintf(c.w, "🔊 %s\n", text)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	t := time.NewTimer(time.Duration(len(strings.Fields(text))) * c.perWord)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
