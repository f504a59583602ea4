// Package session implements the assistive session: tap gestures select a
// mode, frames are captured on a schedule and sent for perception, and
// results are narrated when they change.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/basar/camera"
	"go.aimuz.me/basar/internal/types"
	"go.aimuz.me/basar/perception"
)

// Presenter displays results and session status.
// Render is called once per completed cycle, whether or not it was narrated.
type Presenter interface {
	Render(res types.Result)
	SetStatus(st types.Status)
}

// Phrases are the fixed sentences the session speaks.
type Phrases struct {
	Detecting string // Confirmation when object detection is activated
	Reading   string // Confirmation when text reading is activated
	Idle      string // Confirmation when the session is paused
	Greeting  string // Spoken once at startup
	NoObjects string // Status text for an empty detection
}

// DefaultPhrases returns the Arabic phrases used with the default locale.
func DefaultPhrases() Phrases {
	return Phrases{
		Detecting: "تم تفعيل وضع اكتشاف الأشياء",
		Reading:   "تم تفعيل وضع قراءة النصوص",
		Idle:      "تم إيقاف الوضع",
		Greeting:  "لو عايز وضع اكتشاف الأشياء اضغط مرتين. لو عايز وضع قراءة النصوص اضغط ثلاث مرات.",
		NoObjects: "لا توجد أشياء مكتشفة",
	}
}

// ControllerConfig holds configuration for the session controller.
type ControllerConfig struct {
	DetectInterval time.Duration
	ReadInterval   time.Duration
	CycleTimeout   time.Duration // Upper bound for one capture-and-send cycle
	Locale         string
	Phrases        Phrases

	// ReadingLocale picks the narration locale for recognized text.
	// It returns "" to keep the default locale.
	ReadingLocale func(text string) string
}

// requestQueueSize bounds mode requests waiting to be applied.
const requestQueueSize = 8

// DefaultControllerConfig returns the default controller configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		DetectInterval: 5 * time.Second,
		ReadInterval:   3 * time.Second,
		CycleTimeout:   20 * time.Second,
		Locale:         "ar-SA",
		Phrases:        DefaultPhrases(),
	}
}

// Controller owns the session mode and everything keyed by it.
type Controller struct {
	cfg       ControllerConfig
	source    camera.Source
	client    perception.Client
	narrator  *Narrator
	presenter Presenter
	scheduler *Scheduler

	mu         sync.Mutex
	mode       types.Mode
	epoch      uint64 // Bumped on every transition; responses from older epochs are stale
	lastSpoken map[types.Mode]string
	handle     *ScheduleHandle
	status     types.Status
	cycles     int

	confirmMu sync.Mutex // Orders confirmations of racing transitions

	requests  chan types.Mode
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates an idle controller. presenter may be nil.
func NewController(cfg ControllerConfig, source camera.Source, client perception.Client, narrator *Narrator, presenter Presenter) *Controller {
	def := DefaultControllerConfig()
	if cfg.DetectInterval <= 0 {
		cfg.DetectInterval = def.DetectInterval
	}
	if cfg.ReadInterval <= 0 {
		cfg.ReadInterval = def.ReadInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = def.CycleTimeout
	}
	if cfg.Locale == "" {
		cfg.Locale = narrator.Locale()
	}
	if presenter == nil {
		presenter = nopPresenter{}
	}

	c := &Controller{
		cfg:        cfg,
		source:     source,
		client:     client,
		narrator:   narrator,
		presenter:  presenter,
		scheduler:  NewScheduler(),
		lastSpoken: make(map[types.Mode]string),
		status:     types.Status{Mode: types.ModeIdle, UpdatedAt: time.Now()},
		requests:   make(chan types.Mode, requestQueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Post queues a recognized gesture and returns immediately.
func (c *Controller) Post(cmd GestureCommand) {
	switch cmd {
	case ActivateDetecting:
		c.Request(types.ModeDetecting)
	case ActivateReading:
		c.Request(types.ModeReading)
	default:
		slog.Warn("unknown gesture command", "command", int(cmd))
	}
}

// Request queues a switch to mode (ModeIdle deactivates) and returns
// immediately. Requests are applied in order on the controller's own
// goroutine, so an input loop is never held up by a confirmation waiting
// for narration to stop.
func (c *Controller) Request(mode types.Mode) {
	select {
	case <-c.quit:
		return
	default:
	}
	select {
	case c.requests <- mode:
	default:
		slog.Warn("mode request dropped, queue full", "mode", mode)
	}
}

func (c *Controller) dispatch() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case mode := <-c.requests:
			c.Activate(mode)
		}
	}
}

// Handle applies a recognized gesture on the calling goroutine.
func (c *Controller) Handle(cmd GestureCommand) {
	switch cmd {
	case ActivateDetecting:
		c.Activate(types.ModeDetecting)
	case ActivateReading:
		c.Activate(types.ModeReading)
	default:
		slog.Warn("unknown gesture command", "command", int(cmd))
	}
}

// Activate switches to mode from any state. Activating the current mode
// restarts it: the schedule and the narration memo start over.
func (c *Controller) Activate(mode types.Mode) {
	if mode == types.ModeIdle {
		c.Deactivate()
		return
	}

	c.mu.Lock()
	c.scheduler.Stop()
	c.epoch++
	epoch := c.epoch
	clear(c.lastSpoken)
	c.mode = mode
	c.cycles = 0
	c.status = types.Status{Mode: mode, UpdatedAt: time.Now()}
	c.handle = c.scheduler.Start(mode, c.interval(mode), c.cycle(mode, epoch))
	st := c.statusLocked()
	c.mu.Unlock()

	slog.Info("mode activated", "mode", mode, "interval", c.interval(mode))
	c.presenter.SetStatus(st)
	c.confirm(epoch, c.confirmation(mode))
}

// Deactivate stops capturing and returns to idle.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if c.mode == types.ModeIdle {
		c.mu.Unlock()
		return
	}
	c.scheduler.Stop()
	c.epoch++
	epoch := c.epoch
	clear(c.lastSpoken)
	c.mode = types.ModeIdle
	c.handle = nil
	c.cycles = 0
	c.status = types.Status{Mode: types.ModeIdle, UpdatedAt: time.Now()}
	st := c.statusLocked()
	c.mu.Unlock()

	slog.Info("mode deactivated")
	c.presenter.SetStatus(st)
	c.confirm(epoch, c.cfg.Phrases.Idle)
}

// Mode returns the active mode.
func (c *Controller) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status returns a snapshot of the session.
func (c *Controller) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Greet speaks the greeting after delay, unless ctx is done first.
func (c *Controller) Greet(ctx context.Context, delay time.Duration) {
	if c.cfg.Phrases.Greeting == "" {
		return
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	c.narrator.TrySpeak(NarrationRequest{Text: c.cfg.Phrases.Greeting, Locale: c.cfg.Locale})
}

// Close stops request dispatch and the schedule, waits for the in-flight
// cycle to return and for narration to go silent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done

	c.mu.Lock()
	h := c.handle
	c.scheduler.Stop()
	c.epoch++
	c.handle = nil
	c.mu.Unlock()

	c.scheduler.Wait(h)
	c.narrator.Stop()
	c.narrator.Wait()
}

func (c *Controller) interval(mode types.Mode) time.Duration {
	if mode == types.ModeReading {
		return c.cfg.ReadInterval
	}
	return c.cfg.DetectInterval
}

func (c *Controller) confirmation(mode types.Mode) string {
	if mode == types.ModeReading {
		return c.cfg.Phrases.Reading
	}
	return c.cfg.Phrases.Detecting
}

// confirm preempts any narration with a mode confirmation, unless a newer
// transition has already happened.
func (c *Controller) confirm(epoch uint64, text string) {
	c.confirmMu.Lock()
	defer c.confirmMu.Unlock()
	if !c.current(epoch) {
		return
	}
	c.narrator.Preempt(NarrationRequest{Text: text, Locale: c.cfg.Locale})
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// cycle returns the tick function of one schedule.
func (c *Controller) cycle(mode types.Mode, epoch uint64) TickFunc {
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
		defer cancel()
		c.runCycle(ctx, mode, epoch)
	}
}

// runCycle captures one frame, submits it and handles the result.
// Every failure ends the cycle quietly; the next tick retries.
func (c *Controller) runCycle(ctx context.Context, mode types.Mode, epoch uint64) {
	frame, err := c.source.Frame(ctx)
	if err != nil {
		c.cycleFailed(ctx, mode, epoch, "capture frame", err)
		return
	}

	res, err := c.client.Submit(ctx, mode, frame)
	if err != nil {
		c.cycleFailed(ctx, mode, epoch, "submit frame", err)
		return
	}
	res.Mode = mode

	if !c.current(epoch) {
		slog.Debug("stale perception result discarded", "mode", mode, "request", res.RequestID)
		return
	}
	c.presenter.Render(res)
	c.deliver(mode, epoch, res)
}

// deliver updates the status and narrates the result if it is new.
func (c *Controller) deliver(mode types.Mode, epoch uint64, res types.Result) {
	locale := c.cfg.Locale
	u := deriveUtterance(res, locale)
	if u.key != "" && mode == types.ModeReading && c.cfg.ReadingLocale != nil {
		if l := c.cfg.ReadingLocale(u.text); l != "" {
			locale = l
		}
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.cycles++
	c.status.Text = statusText(res, c.cfg.Phrases.NoObjects)
	c.status.Err = ""
	c.status.UpdatedAt = time.Now()

	switch {
	case u.key == "":
		// No information: forget the memo so a reappearing value is spoken again.
		delete(c.lastSpoken, mode)
	case c.lastSpoken[mode] == u.key:
	default:
		// The memo only records what was actually spoken.
		if c.narrator.TrySpeak(NarrationRequest{Text: u.text, Locale: locale}) {
			c.lastSpoken[mode] = u.key
		} else {
			slog.Debug("narration dropped, narrator busy", "mode", mode)
		}
	}
	st := c.statusLocked()
	c.mu.Unlock()

	c.presenter.SetStatus(st)
}

func (c *Controller) cycleFailed(ctx context.Context, mode types.Mode, epoch uint64, op string, err error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		// The schedule was stopped.
		return
	}

	var (
		netErr *perception.NetworkError
		svcErr *perception.ServiceError
	)
	switch {
	case errors.Is(err, camera.ErrUnavailable):
		slog.Warn("camera unavailable", "mode", mode, "error", err)
	case errors.As(err, &netErr):
		slog.Warn("perception request failed", "mode", mode, "error", err)
	case errors.As(err, &svcErr):
		slog.Warn("perception service error", "mode", mode, "status", svcErr.Status, "error", err)
	default:
		slog.Error(op+" failed", "mode", mode, "error", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.status.Err = err.Error()
	c.status.UpdatedAt = time.Now()
	st := c.statusLocked()
	c.mu.Unlock()

	c.presenter.SetStatus(st)
}

func (c *Controller) statusLocked() types.Status {
	st := c.status
	st.Mode = c.mode
	st.Cycles = c.cycles
	st.Speaking = c.narrator.Speaking()
	if c.handle != nil {
		st.Busy = c.handle.Busy()
		st.Skipped = c.handle.Stats().Skipped
	}
	return st
}

type nopPresenter struct{}

func (nopPresenter) Render(types.Result)    {}
func (nopPresenter) SetStatus(types.Status) {}
