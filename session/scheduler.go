package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/basar/internal/types"
)

// TickFunc performs one capture-and-send cycle. ctx is cancelled when the
// schedule that started the cycle is stopped.
type TickFunc func(ctx context.Context)

// ScheduleStats counts what a schedule did.
type ScheduleStats struct {
	Fired   int // Ticks that ran a cycle
	Skipped int // Ticks dropped because a cycle was still in flight
}

// ScheduleHandle identifies one periodic schedule. It is created by
// Scheduler.Start and is dead once stopped.
type ScheduleHandle struct {
	ID       string
	Mode     types.Mode
	Interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	cycles sync.WaitGroup

	inflight atomic.Bool
	fired    atomic.Int64
	skipped  atomic.Int64
}

// Stats returns the counters of the schedule.
func (h *ScheduleHandle) Stats() ScheduleStats {
	return ScheduleStats{
		Fired:   int(h.fired.Load()),
		Skipped: int(h.skipped.Load()),
	}
}

// Busy reports whether a cycle of this schedule is in flight.
func (h *ScheduleHandle) Busy() bool {
	return h.inflight.Load()
}

// Context returns the context handed to the schedule's cycles.
func (h *ScheduleHandle) Context() context.Context {
	return h.ctx
}

// run is the ticker loop. It never blocks on a cycle.
func (h *ScheduleHandle) run(onTick TickFunc) {
	defer close(h.done)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			// A stop racing with the tick wins.
			if h.ctx.Err() != nil {
				return
			}
			h.tick(onTick)
		}
	}
}

func (h *ScheduleHandle) tick(onTick TickFunc) {
	if !h.inflight.CompareAndSwap(false, true) {
		h.skipped.Add(1)
		slog.Debug("capture tick skipped", "mode", h.Mode, "schedule", h.ID)
		return
	}
	h.fired.Add(1)

	h.cycles.Add(1)
	go func() {
		defer h.cycles.Done()
		defer h.inflight.Store(false)
		onTick(h.ctx)
	}()
}

// stop cancels the schedule and waits for the ticker loop to exit.
// In-flight cycles keep running with a cancelled context.
func (h *ScheduleHandle) stop() {
	h.cancel()
	<-h.done
}

// Scheduler owns at most one active schedule.
type Scheduler struct {
	mu     sync.Mutex
	active *ScheduleHandle
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start cancels any existing schedule and fires onTick every interval.
func (s *Scheduler) Start(mode types.Mode, interval time.Duration, onTick TickFunc) *ScheduleHandle {
	if interval <= 0 {
		interval = time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	h := &ScheduleHandle{
		ID:       uuid.NewString(),
		Mode:     mode,
		Interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.active = h
	go h.run(onTick)

	slog.Debug("capture schedule started", "mode", mode, "interval", interval, "schedule", h.ID)
	return h
}

// Stop cancels the active schedule. It is a no-op when nothing is scheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active returns the running schedule, or nil.
func (s *Scheduler) Active() *ScheduleHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Wait blocks until the cycles of the given handle have returned.
// It is intended for shutdown and tests.
func (s *Scheduler) Wait(h *ScheduleHandle) {
	if h != nil {
		h.cycles.Wait()
	}
}

func (s *Scheduler) stopLocked() {
	if s.active == nil {
		return
	}
	h := s.active
	s.active = nil
	h.stop()
	slog.Debug("capture schedule stopped", "mode", h.Mode, "schedule", h.ID, "fired", h.fired.Load(), "skipped", h.skipped.Load())
}
