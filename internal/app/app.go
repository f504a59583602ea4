// Package app wires the session to its inputs and outputs and runs it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"go.aimuz.me/basar/cache"
	"go.aimuz.me/basar/camera"
	"go.aimuz.me/basar/config"
	"go.aimuz.me/basar/hotkey"
	"go.aimuz.me/basar/internal/control"
	"go.aimuz.me/basar/internal/tui"
	"go.aimuz.me/basar/internal/types"
	"go.aimuz.me/basar/session"
)

// Options adjusts how the service runs.
type Options struct {
	Headless bool      // Never show the terminal display
	Input    io.Reader // Command lines in headless mode, defaults to stdin
}

// Interactive reports whether the service will own the terminal.
func Interactive(opts Options) bool {
	if opts.Headless {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Service runs one assistive session.
// This struct focuses on lifecycle; behavior lives in the session package.
type Service struct {
	cfg     *config.Config
	opts    Options
	version string

	cache      *cache.Cache
	perception *Perception
	source     camera.Source
	controller *session.Controller
	gestures   *session.GestureRecognizer
	hotkey     *hotkey.TapListener
	control    *control.Server
	ui         *tui.UI
}

// New creates a service for cfg.
func New(cfg *config.Config, opts Options, version string) *Service {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	return &Service{cfg: cfg, opts: opts, version: version}
}

// Run starts the session and blocks until ctx is done or the user quits.
func (s *Service) Run(ctx context.Context) error {
	defer s.Shutdown()
	if err := s.setup(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, w := range s.cfg.Warnings() {
		slog.Warn("check configuration", "warning", w)
	}
	slog.Info("session started", "version", s.version, "window", s.gestures.Window())

	s.setupHotkey()
	if err := s.setupControl(ctx); err != nil {
		return err
	}
	if s.cfg.Narration.Greeting {
		go s.controller.Greet(ctx, s.cfg.GreetingDelay())
	}

	if s.ui != nil {
		return s.ui.Run(ctx, tui.Actions{
			Tap:        s.gestures.Tap,
			Activate:   s.controller.Request,
			Deactivate: func() { s.controller.Request(types.ModeIdle) },
		})
	}

	go func() {
		if err := ReadCommands(ctx, s.opts.Input, s.target()); err != nil {
			slog.Warn("read commands", "error", err)
		}
	}()
	<-ctx.Done()
	return nil
}

// Shutdown stops inputs first, then the session, then releases resources.
func (s *Service) Shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if s.control != nil {
		if err := s.control.Shutdown(); err != nil {
			slog.Warn("stop control api", "error", err)
		}
	}
	if s.gestures != nil {
		s.gestures.Reset()
	}
	if s.controller != nil {
		s.controller.Close()
	}
	if s.source != nil {
		if err := camera.Close(s.source); err != nil {
			slog.Warn("close camera", "error", err)
		}
	}
	if s.perception != nil {
		if err := s.perception.Close(); err != nil {
			slog.Warn("close perception", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Error("close cache", "error", err)
		}
	}
}

func (s *Service) setup() error {
	c, err := OpenCache(s.cfg)
	if err != nil {
		// Caching is an optimization; run without it.
		slog.Error("init cache", "error", err)
	}
	s.cache = c

	s.perception, err = NewPerception(s.cfg, s.cache)
	if err != nil {
		return fmt.Errorf("setup perception: %w", err)
	}

	s.source, err = camera.New(CameraConfig(s.cfg.Capture.Camera))
	if err != nil {
		return fmt.Errorf("setup camera: %w", err)
	}

	speaker, err := NewSpeaker(s.cfg)
	if err != nil {
		return fmt.Errorf("setup speech: %w", err)
	}
	narrator := session.NewNarrator(speaker, s.cfg.Narration.Locale)

	var presenter session.Presenter
	if Interactive(s.opts) {
		s.ui = tui.NewUI()
		presenter = s.ui
	} else {
		presenter = logPresenter{}
	}

	s.controller = session.NewController(ControllerConfig(s.cfg), s.source, s.perception.Client, narrator, presenter)
	s.gestures = session.NewGestureRecognizer(s.cfg.GestureWindow(), s.controller.Post)
	return nil
}

func (s *Service) setupHotkey() {
	if !s.cfg.Input.Hotkey {
		return
	}
	key, err := hotkey.ParseKey(s.cfg.Input.Key)
	if err != nil {
		slog.Error("parse tap key", "error", err)
		return
	}
	s.hotkey = hotkey.NewTapListener(key, s.gestures.OnTap)
	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
		s.hotkey = nil
	}
}

func (s *Service) setupControl(ctx context.Context) error {
	if s.cfg.Input.ControlAddr == "" {
		return nil
	}
	s.control = control.NewServer(s.controller, s.gestures)
	if _, err := s.control.Start(ctx, s.cfg.Input.ControlAddr); err != nil {
		s.control = nil
		return fmt.Errorf("start control api: %w", err)
	}
	return nil
}

func (s *Service) target() Target {
	return sessionTarget{gestures: s.gestures, controller: s.controller}
}

type sessionTarget struct {
	gestures   *session.GestureRecognizer
	controller *session.Controller
}

func (t sessionTarget) Tap()                     { t.gestures.Tap() }
func (t sessionTarget) Activate(mode types.Mode) { t.controller.Activate(mode) }
func (t sessionTarget) Deactivate()              { t.controller.Deactivate() }

// logPresenter reports results in the log when there is no display.
type logPresenter struct{}

func (logPresenter) Render(res types.Result) {
	attrs := []any{"mode", res.Mode, "latency", res.Latency}
	switch res.Kind {
	case types.ResultDetection:
		captions := make([]string, 0, len(res.Objects))
		for _, o := range res.Objects {
			captions = append(captions, o.Caption())
		}
		attrs = append(attrs, "objects", captions)
	default:
		attrs = append(attrs, "text", res.Text)
	}
	slog.Info("perception result", attrs...)
}

func (logPresenter) SetStatus(st types.Status) {
	if st.Err != "" {
		slog.Debug("session status", "mode", st.Mode, "error", st.Err)
		return
	}
	slog.Debug("session status", "mode", st.Mode, "text", st.Text, "cycles", st.Cycles)
}
