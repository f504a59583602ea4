package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/basar/camera"
	"go.aimuz.me/basar/internal/types"
	"go.aimuz.me/basar/perception"
)

type fakeSource struct {
	err error
}

func (f *fakeSource) Frame(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

// fakeClient answers with a user-supplied function and counts calls per mode.
type fakeClient struct {
	submit func(ctx context.Context, mode types.Mode) (types.Result, error)

	mu    sync.Mutex
	calls map[types.Mode]int
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[types.Mode]int)
	}
	f.calls[mode]++
	f.mu.Unlock()
	return f.submit(ctx, mode)
}

func (f *fakeClient) count(mode types.Mode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[mode]
}

type recordingPresenter struct {
	mu       sync.Mutex
	rendered []types.Result
	statuses []types.Status
}

func (p *recordingPresenter) Render(res types.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rendered = append(p.rendered, res)
}

func (p *recordingPresenter) SetStatus(st types.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
}

func (p *recordingPresenter) renders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rendered)
}

func (p *recordingPresenter) lastStatus() types.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return types.Status{}
	}
	return p.statuses[len(p.statuses)-1]
}

type harness struct {
	ctrl      *Controller
	speaker   *fakeSpeaker
	narrator  *Narrator
	client    *fakeClient
	source    *fakeSource
	presenter *recordingPresenter
}

func newHarness(t *testing.T, interval time.Duration, submit func(ctx context.Context, mode types.Mode) (types.Result, error)) *harness {
	t.Helper()
	h := &harness{
		speaker:   &fakeSpeaker{},
		client:    &fakeClient{submit: submit},
		source:    &fakeSource{},
		presenter: &recordingPresenter{},
	}
	h.narrator = NewNarrator(h.speaker, "ar-SA")

	cfg := DefaultControllerConfig()
	cfg.DetectInterval = interval
	cfg.ReadInterval = interval
	h.ctrl = NewController(cfg, h.source, h.client, h.narrator, h.presenter)
	t.Cleanup(h.ctrl.Close)
	return h
}

// cycle runs one capture cycle of the current mode synchronously.
func (h *harness) cycle() {
	h.ctrl.mu.Lock()
	mode, epoch := h.ctrl.mode, h.ctrl.epoch
	h.ctrl.mu.Unlock()
	h.ctrl.runCycle(context.Background(), mode, epoch)
	h.narrator.Wait()
}

func textResult(text string) types.Result {
	return types.Result{Kind: types.ResultText, Mode: types.ModeReading, Text: text}
}

func objectsResult(labels ...string) types.Result {
	res := types.Result{Kind: types.ResultDetection, Mode: types.ModeDetecting}
	for _, l := range labels {
		res.Objects = append(res.Objects, types.Object{Label: l})
	}
	return res
}

// scripted returns results in order, then repeats the last one.
func scripted(results ...types.Result) func(ctx context.Context, mode types.Mode) (types.Result, error) {
	var i atomic.Int32
	return func(ctx context.Context, mode types.Mode) (types.Result, error) {
		n := int(i.Add(1)) - 1
		if n >= len(results) {
			n = len(results) - 1
		}
		return results[n], nil
	}
}

const never = time.Hour

func TestController_ActivateNarratesConfirmation(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("")))
	phrases := DefaultPhrases()

	assert.Equal(t, types.ModeIdle, h.ctrl.Mode())

	h.ctrl.Handle(ActivateDetecting)
	h.narrator.Wait()
	assert.Equal(t, types.ModeDetecting, h.ctrl.Mode())
	assert.Equal(t, types.ModeDetecting, h.presenter.lastStatus().Mode)

	h.ctrl.Handle(ActivateReading)
	h.narrator.Wait()
	assert.Equal(t, types.ModeReading, h.ctrl.Mode())

	assert.Equal(t, []string{phrases.Detecting, phrases.Reading}, h.speaker.texts())
	for _, r := range h.speaker.requests() {
		assert.Equal(t, "ar-SA", r.Locale)
	}
}

func TestController_ReadingDedup(t *testing.T) {
	tests := []struct {
		name    string
		results []string
		want    []string
	}{
		{name: "identical results narrated once", results: []string{"STOP", "STOP"}, want: []string{"STOP"}},
		{name: "blank gap re-narrates", results: []string{"STOP", "", "STOP"}, want: []string{"STOP", "STOP"}},
		{name: "whitespace only is blank", results: []string{"STOP", "  \n\t", "STOP"}, want: []string{"STOP", "STOP"}},
		{name: "change then revert", results: []string{"STOP", "EXIT", "STOP"}, want: []string{"STOP", "EXIT", "STOP"}},
		{name: "layout differences ignored", results: []string{"NO  ENTRY", "NO\nENTRY"}, want: []string{"NO ENTRY"}},
		{name: "blank first", results: []string{"", "", "OPEN"}, want: []string{"OPEN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]types.Result, len(tt.results))
			for i, r := range tt.results {
				results[i] = textResult(r)
			}
			h := newHarness(t, never, scripted(results...))
			h.ctrl.Activate(types.ModeReading)
			h.narrator.Wait()
			confirmations := len(h.speaker.texts())

			for range tt.results {
				h.cycle()
			}

			assert.Equal(t, tt.want, h.speaker.texts()[confirmations:])
			assert.Equal(t, len(tt.results), h.presenter.renders(), "every cycle is rendered")
		})
	}
}

func TestController_DetectionDedup(t *testing.T) {
	h := newHarness(t, never, scripted(
		objectsResult("chair", "door"),
		objectsResult("door", "chair"),
		objectsResult(),
		objectsResult("door", "chair"),
		objectsResult("person"),
		objectsResult("person"),
	))
	h.ctrl.Activate(types.ModeDetecting)
	h.narrator.Wait()
	confirmations := len(h.speaker.texts())

	for i := 0; i < 6; i++ {
		h.cycle()
	}

	assert.Equal(t, []string{"chair ، door", "door ، chair", "person"}, h.speaker.texts()[confirmations:])
	assert.Equal(t, "person", h.ctrl.Status().Text)
	assert.Equal(t, 6, h.ctrl.Status().Cycles)
}

func TestController_EmptyDetectionShowsMessage(t *testing.T) {
	empty := objectsResult()
	empty.Message = "no objects in view"
	h := newHarness(t, never, scripted(empty, objectsResult()))
	h.ctrl.Activate(types.ModeDetecting)
	h.narrator.Wait()
	confirmations := len(h.speaker.texts())

	h.cycle()
	assert.Equal(t, "no objects in view", h.ctrl.Status().Text)

	h.cycle()
	assert.Equal(t, DefaultPhrases().NoObjects, h.ctrl.Status().Text)
	assert.Len(t, h.speaker.texts(), confirmations, "empty results are never narrated")
}

func TestController_SummaryWithoutObjectsNotNarrated(t *testing.T) {
	summaryOnly := objectsResult()
	summaryOnly.Summary = "nothing in view"
	h := newHarness(t, never, scripted(objectsResult("chair"), summaryOnly, objectsResult("chair")))
	h.ctrl.Activate(types.ModeDetecting)
	h.narrator.Wait()
	confirmations := len(h.speaker.texts())

	h.cycle()
	h.cycle()
	assert.Equal(t, "nothing in view", h.ctrl.Status().Text, "the summary is shown")
	h.cycle()

	assert.Equal(t, []string{"chair", "chair"}, h.speaker.texts()[confirmations:],
		"the summary is not spoken and the object set is spoken again after it")
}

func TestController_DroppedNarrationRetried(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("STOP")))
	h.ctrl.Activate(types.ModeReading)
	h.narrator.Wait()

	// Something else is speaking during the first cycle.
	h.speaker.duration = 200 * time.Millisecond
	require.True(t, h.narrator.TrySpeak(NarrationRequest{Text: "hold"}))
	h.ctrl.mu.Lock()
	epoch := h.ctrl.epoch
	h.ctrl.mu.Unlock()
	h.ctrl.runCycle(context.Background(), types.ModeReading, epoch)
	h.narrator.Wait()
	assert.NotContains(t, h.speaker.texts(), "STOP")

	h.speaker.duration = 0
	h.cycle()
	assert.Equal(t, "STOP", h.speaker.texts()[len(h.speaker.texts())-1],
		"a dropped utterance is retried on the next cycle")
}

func TestController_ModeSwitchCancelsSchedule(t *testing.T) {
	h := newHarness(t, 15*time.Millisecond, func(ctx context.Context, mode types.Mode) (types.Result, error) {
		if mode == types.ModeReading {
			return textResult("EXIT"), nil
		}
		return objectsResult("car"), nil
	})

	h.ctrl.Activate(types.ModeDetecting)
	require.Eventually(t, func() bool { return h.client.count(types.ModeDetecting) >= 2 }, time.Second, 5*time.Millisecond)

	h.ctrl.Activate(types.ModeReading)
	detects := h.client.count(types.ModeDetecting)

	require.Eventually(t, func() bool { return h.client.count(types.ModeReading) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, detects, h.client.count(types.ModeDetecting), "no detecting tick after the switch")
}

func TestController_StaleResponseSuppressed(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	h := newHarness(t, 10*time.Millisecond, func(ctx context.Context, mode types.Mode) (types.Result, error) {
		if mode == types.ModeDetecting {
			once.Do(func() { close(started) })
			<-release // Ignores cancellation, like a slow server.
			return objectsResult("stale chair"), nil
		}
		return textResult(""), nil
	})

	h.ctrl.Activate(types.ModeDetecting)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("detecting cycle did not start")
	}

	h.ctrl.Activate(types.ModeReading)
	renders := h.presenter.renders()
	close(release)

	// Let the stale cycle finish and reading cycles run.
	require.Eventually(t, func() bool { return h.client.count(types.ModeReading) >= 2 }, time.Second, 5*time.Millisecond)
	h.narrator.Wait()

	assert.NotContains(t, h.speaker.texts(), "stale chair")
	assert.GreaterOrEqual(t, h.presenter.renders(), renders)
	h.presenter.mu.Lock()
	for _, st := range h.presenter.statuses {
		assert.NotEqual(t, "stale chair", st.Text)
	}
	for _, r := range h.presenter.rendered {
		assert.Equal(t, types.ModeReading, r.Mode, "stale detection result rendered")
	}
	h.presenter.mu.Unlock()
}

func TestController_FailuresAbsorbed(t *testing.T) {
	tests := []struct {
		name   string
		source error
		submit error
	}{
		{name: "camera unavailable", source: fmt.Errorf("%w: no device", camera.ErrUnavailable)},
		{name: "network error", submit: &perception.NetworkError{Op: "send request", Err: context.DeadlineExceeded}},
		{name: "service error", submit: &perception.ServiceError{Status: 500, Body: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, never, func(ctx context.Context, mode types.Mode) (types.Result, error) {
				if tt.submit != nil {
					return types.Result{}, tt.submit
				}
				return textResult("OK"), nil
			})
			h.source.err = tt.source
			h.ctrl.Activate(types.ModeReading)
			h.narrator.Wait()
			confirmations := len(h.speaker.texts())

			h.cycle()

			assert.Len(t, h.speaker.texts(), confirmations, "failures are never narrated")
			assert.Zero(t, h.presenter.renders())
			assert.NotEmpty(t, h.ctrl.Status().Err)
			assert.NotEmpty(t, h.presenter.lastStatus().Err)

			// The next good cycle clears the error.
			h.source.err = nil
			h.client.submit = scripted(textResult("OK"))
			h.cycle()
			assert.Empty(t, h.ctrl.Status().Err)
			assert.Equal(t, "OK", h.ctrl.Status().Text)
		})
	}
}

func TestController_Deactivate(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond, scripted(textResult("")))

	h.ctrl.Deactivate() // No-op when idle.
	assert.Empty(t, h.speaker.texts())

	h.ctrl.Activate(types.ModeReading)
	require.Eventually(t, func() bool { return h.client.count(types.ModeReading) >= 1 }, time.Second, 5*time.Millisecond)

	h.ctrl.Deactivate()
	assert.Equal(t, types.ModeIdle, h.ctrl.Mode())
	n := h.client.count(types.ModeReading)
	assert.Never(t, func() bool { return h.client.count(types.ModeReading) != n }, 60*time.Millisecond, 5*time.Millisecond)

	h.narrator.Wait()
	texts := h.speaker.texts()
	assert.Equal(t, DefaultPhrases().Idle, texts[len(texts)-1])
}

func TestController_ReadingLocale(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("EXIT")))
	h.ctrl.cfg.ReadingLocale = func(text string) string { return "en" }

	h.ctrl.Activate(types.ModeReading)
	h.narrator.Wait()
	h.cycle()

	got := h.speaker.requests()
	require.NotEmpty(t, got)
	assert.Equal(t, NarrationRequest{Text: "EXIT", Locale: "en"}, got[len(got)-1])
}

func TestController_Greet(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.ctrl.Greet(ctx, time.Hour)
	assert.Empty(t, h.speaker.texts(), "cancelled greeting is not spoken")

	h.ctrl.Greet(context.Background(), 5*time.Millisecond)
	h.narrator.Wait()
	assert.Equal(t, []string{DefaultPhrases().Greeting}, h.speaker.texts())
}

func TestController_RequestDoesNotBlockOnNarration(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("")))
	h.speaker.duration = 5 * time.Second
	require.True(t, h.narrator.TrySpeak(NarrationRequest{Text: "a long result"}))

	start := time.Now()
	h.ctrl.Post(ActivateDetecting)
	h.ctrl.Post(ActivateReading)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "posting must not wait for narration")

	require.Eventually(t, func() bool {
		texts := h.speaker.texts()
		return h.ctrl.Mode() == types.ModeReading && len(texts) > 0 && texts[len(texts)-1] == DefaultPhrases().Reading
	}, 3*time.Second, 5*time.Millisecond, "requests are applied in order")

	h.ctrl.Request(types.ModeIdle)
	require.Eventually(t, func() bool { return h.ctrl.Mode() == types.ModeIdle }, 3*time.Second, 5*time.Millisecond)
}

func TestController_CloseSilencesNarration(t *testing.T) {
	h := newHarness(t, never, scripted(textResult("")))
	h.speaker.duration = 5 * time.Second
	require.True(t, h.narrator.TrySpeak(NarrationRequest{Text: "a long result"}))

	h.ctrl.Close()
	assert.False(t, h.narrator.Speaking())

	h.ctrl.Request(types.ModeReading)
	assert.Never(t, func() bool { return h.ctrl.Mode() != types.ModeIdle }, 50*time.Millisecond, 5*time.Millisecond,
		"requests after close are ignored")
	h.ctrl.Close()
}

// Gesture scenarios from tap to narration.
func TestSession_TapScenarios(t *testing.T) {
	phrases := DefaultPhrases()

	tests := []struct {
		name     string
		taps     int
		wantMode types.Mode
		wantSaid []string
	}{
		{name: "double tap", taps: 2, wantMode: types.ModeDetecting, wantSaid: []string{phrases.Detecting}},
		{name: "triple tap", taps: 3, wantMode: types.ModeReading, wantSaid: []string{phrases.Reading}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, never, scripted(textResult("")))
			g := NewGestureRecognizer(testWindow, h.ctrl.Post)

			t0 := time.Now()
			for i := 0; i < tt.taps; i++ {
				g.OnTap(t0.Add(time.Duration(i) * 10 * time.Millisecond))
			}

			require.Eventually(t, func() bool { return h.ctrl.Mode() == tt.wantMode }, time.Second, 5*time.Millisecond)
			// Wait past any debounce that could still fire.
			time.Sleep(3 * testWindow)
			h.narrator.Wait()

			assert.Equal(t, tt.wantMode, h.ctrl.Mode())
			assert.Equal(t, tt.wantSaid, h.speaker.texts())
		})
	}
}
