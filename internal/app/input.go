package app

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"go.aimuz.me/basar/internal/types"
)

// Target receives commands read from a line stream.
type Target interface {
	Tap()
	Activate(mode types.Mode)
	Deactivate()
}

// ReadCommands reads one command per line from r until EOF or ctx is done.
// An empty line is a tap; a mode name such as "detect", "read" or "idle"
// switches directly.
func ReadCommands(ctx context.Context, r io.Reader, t Target) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			apply(strings.TrimSpace(line), t)
		}
	}
}

func apply(line string, t Target) {
	switch line {
	case "", "tap":
		t.Tap()
		return
	case "stop":
		t.Deactivate()
		return
	}
	mode, err := types.ParseMode(line)
	if err != nil {
		slog.Warn("unknown command", "line", line)
		return
	}
	if mode == types.ModeIdle {
		t.Deactivate()
		return
	}
	t.Activate(mode)
}
