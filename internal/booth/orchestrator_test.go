package booth_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/fakeyudi/smilebooth/internal/booth"
	"github.com/fakeyudi/smilebooth/internal/detect"
	"github.com/fakeyudi/smilebooth/internal/frame"
	"github.com/fakeyudi/smilebooth/internal/session"
	"github.com/fakeyudi/smilebooth/internal/strip"
)

// ── Test doubles ──────────────────────────────────────────────────────

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeSource serves tiny but valid JPEG frames and counts acquisitions
// and releases so tests can assert the exactly-once release rule.
type fakeSource struct {
	opens    int
	closes   int
	openErr  error
	stillErr error
	serial   int
}

func (s *fakeSource) Open(ctx context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opens++
	return nil
}

func (s *fakeSource) Still(f frame.Filter) (*frame.Frame, error) {
	if s.stillErr != nil {
		return nil, s.stillErr
	}
	s.serial++
	return &frame.Frame{Data: tinyJPEG(s.serial), Filter: f}, nil
}

func (s *fakeSource) Close() error {
	s.closes++
	return nil
}

// tinyJPEG encodes a small solid image whose shade depends on serial,
// so photos are distinguishable byte-for-byte.
func tinyJPEG(serial int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	shade := uint8(serial * 17)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// scriptDetector replays a fixed decision sequence, then keeps
// answering no-smile.
type scriptDetector struct {
	decisions []detect.Decision
	next      int
	connected bool
	notified  int
	notifyErr error
}

func (d *scriptDetector) Poll(ctx context.Context, jpeg []byte) detect.Decision {
	if ctx.Err() != nil {
		return detect.DecisionNone
	}
	if d.next < len(d.decisions) {
		dec := d.decisions[d.next]
		d.next++
		return dec
	}
	return detect.DecisionNoSmile
}

func (d *scriptDetector) NotifyManual(ctx context.Context, jpeg []byte) error {
	d.notified++
	return d.notifyErr
}

func (d *scriptDetector) Connected() bool { return d.connected }

// ── Simulation harness ────────────────────────────────────────────────

// sim drives the orchestrator the way the TUI does, but over a virtual
// clock: it keeps absolute due-times for the next poll tick and the
// next countdown tick, always fires the earlier one, and advances the
// clock to it. Detection requests resolve instantly.
type sim struct {
	t        *testing.T
	clock    *fakeClock
	orch     *booth.Orchestrator
	src      *fakeSource
	det      *scriptDetector
	triggers []time.Time // countdown start times, for cooldown checks

	pollDue      time.Time
	countdownDue time.Time
}

func newSim(t *testing.T, decisions ...detect.Decision) *sim {
	t.Helper()
	clock := newFakeClock()
	src := &fakeSource{}
	det := &scriptDetector{decisions: decisions, connected: true}
	orch := booth.New(src, det, booth.WithClock(clock))
	return &sim{t: t, clock: clock, orch: orch, src: src, det: det}
}

func (s *sim) start() {
	s.t.Helper()
	if err := s.orch.Start(context.Background()); err != nil {
		s.t.Fatalf("Start: %v", err)
	}
	s.pollDue = s.clock.Now().Add(s.orch.Intervals().Base)
}

// run fires events in time order until the polling loop stops and no
// countdown is pending, or maxEvents is exhausted.
func (s *sim) run(maxEvents int) {
	s.t.Helper()
	s.runUntil(maxEvents, func() bool {
		return s.pollDue.IsZero() && s.countdownDue.IsZero()
	})
}

// drive fires up to maxEvents events in time order, returning early if
// the loop settles. Unlike run it never fails the test.
func (s *sim) drive(maxEvents int) {
	for i := 0; i < maxEvents; i++ {
		if s.pollDue.IsZero() && s.countdownDue.IsZero() {
			return
		}
		if s.countdownDue.IsZero() || (!s.pollDue.IsZero() && s.pollDue.Before(s.countdownDue)) {
			s.firePoll()
		} else {
			s.fireCountdown()
		}
	}
}

// runUntil fires events in time order until cond holds.
func (s *sim) runUntil(maxEvents int, cond func() bool) {
	s.t.Helper()
	for i := 0; i < maxEvents; i++ {
		if cond() {
			return
		}
		if s.pollDue.IsZero() && s.countdownDue.IsZero() {
			s.t.Fatal("simulation settled before the condition held")
		}
		if s.countdownDue.IsZero() || (!s.pollDue.IsZero() && s.pollDue.Before(s.countdownDue)) {
			s.firePoll()
		} else {
			s.fireCountdown()
		}
	}
	s.t.Fatalf("condition not reached within %d events", maxEvents)
}

func (s *sim) firePoll() {
	s.clock.now = s.pollDue
	s.pollDue = time.Time{}

	step := s.orch.PollStep()
	switch step.Kind {
	case booth.StepStop:
		return
	case booth.StepWait:
		s.pollDue = s.clock.Now().Add(step.Delay)
		return
	}

	// Sample: capture a raw frame and resolve detection immediately.
	raw, err := s.orch.SampleRaw()
	if err != nil {
		s.pollDue = s.clock.Now().Add(step.Delay)
		return
	}
	ctx := s.orch.BeginDetection(context.Background())
	decision := s.orch.DetectFrame(ctx, raw)
	if s.orch.HandleDecision(decision) {
		s.triggers = append(s.triggers, s.clock.Now())
		s.countdownDue = s.clock.Now().Add(s.orch.Intervals().CountdownTick)
	}
	if next := s.orch.PollStep(); next.Kind != booth.StepStop {
		s.pollDue = s.clock.Now().Add(next.Delay)
	}
}

func (s *sim) fireCountdown() {
	s.clock.now = s.countdownDue
	s.countdownDue = time.Time{}

	res := s.orch.CountdownTick()
	if !res.Done {
		s.countdownDue = s.clock.Now().Add(s.orch.Intervals().CountdownTick)
	}
}

// smiles returns n smile decisions.
func smiles(n int) []detect.Decision {
	out := make([]detect.Decision, n)
	for i := range out {
		out[i] = detect.DecisionSmile
	}
	return out
}

// ── Scenario tests ────────────────────────────────────────────────────

func TestTwoFailedPollsThenSmileCapturesOne(t *testing.T) {
	s := newSim(t,
		detect.DecisionNoSmile, // failed request, folded to no-smile
		detect.DecisionNoSmile,
		detect.DecisionSmile,
	)
	s.start()
	s.runUntil(200, func() bool {
		_, active := s.orch.Countdown()
		return s.orch.Session().PhotoCount() == 1 && !active
	})

	if got := s.orch.Session().PhotoCount(); got != 1 {
		t.Errorf("photo count: want 1, got %d", got)
	}
	if got := s.orch.Phase(); got != session.PhaseCapturing {
		t.Errorf("phase: want capturing, got %s", got)
	}
	if len(s.triggers) != 1 {
		t.Errorf("triggers: want 1, got %d", len(s.triggers))
	}
}

func TestThreeCyclesReachPreviewAndReleaseSource(t *testing.T) {
	s := newSim(t, smiles(100)...)
	s.start()
	s.run(500)

	if got := s.orch.Phase(); got != session.PhasePreview {
		t.Fatalf("phase: want preview, got %s", got)
	}
	if got := s.orch.Session().PhotoCount(); got != session.MaxPhotos {
		t.Errorf("photo count: want 3, got %d", got)
	}
	if s.src.closes != 1 {
		t.Errorf("source releases: want exactly 1, got %d", s.src.closes)
	}
	if len(s.triggers) != 3 {
		t.Fatalf("triggers: want 3, got %d", len(s.triggers))
	}
	cooldown := s.orch.Intervals().Cooldown
	for i := 1; i < len(s.triggers); i++ {
		if gap := s.triggers[i].Sub(s.triggers[i-1]); gap < cooldown {
			t.Errorf("trigger gap %d: %v < cooldown %v", i, gap, cooldown)
		}
	}
}

func TestPollingStopsAfterThirdPhoto(t *testing.T) {
	s := newSim(t, smiles(100)...)
	s.start()
	s.run(500)

	// The commit of the third photo and the phase transition are one
	// atomic step: the loop must report stop, not another sample.
	if step := s.orch.PollStep(); step.Kind != booth.StepStop {
		t.Errorf("poll step after third photo: want stop, got %v", step.Kind)
	}
}

func TestCancelledDecisionNeverTriggers(t *testing.T) {
	s := newSim(t)
	s.start()

	if s.orch.HandleDecision(detect.DecisionNone) {
		t.Error("cancelled decision started a countdown")
	}
	if _, active := s.orch.Countdown(); active {
		t.Error("countdown active after cancelled decision")
	}
	if s.orch.Session().PhotoCount() != 0 {
		t.Error("photo recorded from cancelled decision")
	}
}

func TestSecondTriggerDuringCountdownIsNoop(t *testing.T) {
	s := newSim(t)
	s.start()

	if !s.orch.HandleDecision(detect.DecisionSmile) {
		t.Fatal("first smile did not start countdown")
	}
	s.orch.CountdownTick()
	before, active := s.orch.Countdown()
	if !active {
		t.Fatal("countdown not active")
	}

	if s.orch.HandleDecision(detect.DecisionSmile) {
		t.Error("second smile started another countdown")
	}
	after, _ := s.orch.Countdown()
	if after != before {
		t.Errorf("second trigger changed countdown: %d → %d", before, after)
	}
}

func TestResetDuringCountdownRecordsNoPhoto(t *testing.T) {
	s := newSim(t)
	s.start()

	s.orch.HandleDecision(detect.DecisionSmile)
	s.orch.CountdownTick() // 2
	s.orch.CountdownTick() // 1 — one tick from capture

	s.orch.Reset()

	// A stale timer may still fire after the reset.
	res := s.orch.CountdownTick()
	if !res.Done || res.Captured {
		t.Errorf("stale tick after reset: done=%v captured=%v", res.Done, res.Captured)
	}
	if got := s.orch.Session().PhotoCount(); got != 0 {
		t.Errorf("photo count after reset: want 0, got %d", got)
	}
	if got := s.orch.Phase(); got != session.PhaseIdle {
		t.Errorf("phase after reset: want idle, got %s", got)
	}
	if s.src.closes != 1 {
		t.Errorf("source releases: want exactly 1, got %d", s.src.closes)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	s := newSim(t)
	s.orch.Reset() // from idle, before any start
	s.start()
	s.orch.Reset()
	s.orch.Reset()

	if got := s.orch.Phase(); got != session.PhaseIdle {
		t.Errorf("phase: want idle, got %s", got)
	}
	if s.src.closes != 1 {
		t.Errorf("source releases: want exactly 1 for one acquisition, got %d", s.src.closes)
	}
}

func TestRetakeOverwritesExactlyTargetSlot(t *testing.T) {
	s := newSim(t, smiles(100)...)
	s.start()
	s.run(500)
	if s.orch.Phase() != session.PhasePreview {
		t.Fatal("did not reach preview")
	}
	before := s.orch.Session().Photos()

	warmup, err := s.orch.Retake(context.Background(), 1)
	if err != nil {
		t.Fatalf("Retake: %v", err)
	}
	if s.orch.Phase() != session.PhaseCapturing {
		t.Fatalf("phase after retake: want capturing, got %s", s.orch.Phase())
	}
	if s.src.opens != 2 {
		t.Errorf("source acquisitions: want 2, got %d", s.src.opens)
	}

	// Restart polling after the warmup, as the driver would.
	s.clock.advance(warmup)
	s.pollDue = s.clock.Now()
	s.run(500)

	after := s.orch.Session().Photos()
	if len(after) != session.MaxPhotos {
		t.Fatalf("photo count after retake: want 3, got %d", len(after))
	}
	if bytes.Equal(after[1].Data, before[1].Data) {
		t.Error("slot 1 was not overwritten")
	}
	if !bytes.Equal(after[0].Data, before[0].Data) {
		t.Error("slot 0 changed during retake of slot 1")
	}
	if !bytes.Equal(after[2].Data, before[2].Data) {
		t.Error("slot 2 changed during retake of slot 1")
	}
	if s.orch.Phase() != session.PhasePreview {
		t.Errorf("phase after retake capture: want preview, got %s", s.orch.Phase())
	}
	if s.src.closes != 2 {
		t.Errorf("source releases: want 2, got %d", s.src.closes)
	}
	if s.orch.Session().RetakeTarget() != -1 {
		t.Error("retake target not cleared after commit")
	}
}

func TestRetakeRejectedOutsidePreview(t *testing.T) {
	s := newSim(t)
	s.start()
	if _, err := s.orch.Retake(context.Background(), 0); !errors.Is(err, booth.ErrBadPhase) {
		t.Errorf("expected ErrBadPhase, got %v", err)
	}
}

func TestManualTriggerGatedOnConnectivity(t *testing.T) {
	s := newSim(t)
	s.start()
	s.det.connected = false

	started, err := s.orch.ManualTrigger(context.Background())
	if !errors.Is(err, booth.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if started {
		t.Error("trigger reported started while disconnected")
	}
	if _, active := s.orch.Countdown(); active {
		t.Error("countdown started while disconnected")
	}
	if s.orch.Session().PhotoCount() != 0 {
		t.Error("session changed by rejected manual trigger")
	}
}

func TestManualTriggerNotifiesBackendBestEffort(t *testing.T) {
	s := newSim(t)
	s.start()
	s.det.notifyErr = errors.New("backend hiccup")

	started, err := s.orch.ManualTrigger(context.Background())
	if err != nil {
		t.Fatalf("notify failure must be non-fatal, got %v", err)
	}
	if !started {
		t.Fatal("manual trigger did not start countdown")
	}
	if s.det.notified != 1 {
		t.Errorf("backend notifications: want 1, got %d", s.det.notified)
	}
}

func TestManualTriggerDuringCountdownIsNoop(t *testing.T) {
	s := newSim(t)
	s.start()
	s.orch.HandleDecision(detect.DecisionSmile)

	started, err := s.orch.ManualTrigger(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started {
		t.Error("manual trigger started a second countdown")
	}
}

func TestStartDeviceErrorStaysIdle(t *testing.T) {
	clock := newFakeClock()
	src := &fakeSource{openErr: errors.New("permission denied")}
	det := &scriptDetector{connected: true}
	orch := booth.New(src, det, booth.WithClock(clock))

	err := orch.Start(context.Background())
	if err == nil {
		t.Fatal("expected device access error")
	}
	if got := orch.Phase(); got != session.PhaseIdle {
		t.Errorf("phase after device failure: want idle, got %s", got)
	}
}

func TestFrameCaptureFailureRetries(t *testing.T) {
	s := newSim(t, smiles(100)...)
	s.start()
	s.src.stillErr = frame.ErrNoFrame

	// With no frames the loop must keep re-arming, never trigger.
	for i := 0; i < 20; i++ {
		s.firePoll()
		if s.pollDue.IsZero() {
			t.Fatal("loop stopped while frames were unavailable")
		}
	}
	if len(s.triggers) != 0 {
		t.Errorf("triggers without frames: want 0, got %d", len(s.triggers))
	}

	// Frames return; the loop picks up where it left off.
	s.src.stillErr = nil
	s.run(500)
	if got := s.orch.Phase(); got != session.PhasePreview {
		t.Errorf("phase after recovery: want preview, got %s", got)
	}
}

func TestComposeFromPreviewProducesArtifact(t *testing.T) {
	s := newSim(t, smiles(100)...)
	s.start()
	s.run(500)

	s.orch.SetCaption("Hello")
	artifact, err := s.orch.Compose()
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(artifact) == 0 {
		t.Fatal("empty artifact")
	}
	if _, err := jpeg.Decode(bytes.NewReader(artifact)); err != nil {
		t.Errorf("artifact is not a decodable JPEG: %v", err)
	}
	if got := s.orch.Phase(); got != session.PhaseFinal {
		t.Errorf("phase after compose: want final, got %s", got)
	}
}

func TestComposeRejectedOutsidePreview(t *testing.T) {
	s := newSim(t)
	s.start()
	if _, err := s.orch.Compose(); !errors.Is(err, booth.ErrBadPhase) {
		t.Errorf("expected ErrBadPhase, got %v", err)
	}
}

func TestComposeWithFewerThanThreePhotosIsNoop(t *testing.T) {
	var composer strip.Composer
	for n := 0; n < session.MaxPhotos; n++ {
		photos := make([]frame.Frame, n)
		for i := range photos {
			photos[i] = frame.Frame{Data: tinyJPEG(i + 1)}
		}
		if _, err := composer.Compose(photos, ""); !errors.Is(err, strip.ErrPhotoCount) {
			t.Errorf("%d photos: expected ErrPhotoCount, got %v", n, err)
		}
	}
}

func TestBeginDetectionCancelsPrevious(t *testing.T) {
	s := newSim(t)
	s.start()

	first := s.orch.BeginDetection(context.Background())
	second := s.orch.BeginDetection(context.Background())

	if first.Err() == nil {
		t.Error("previous detection context not cancelled")
	}
	if second.Err() != nil {
		t.Error("fresh detection context already cancelled")
	}

	// A poll on the cancelled token must come back as no decision.
	if got := s.det.Poll(first, nil); got != detect.DecisionNone {
		t.Errorf("cancelled poll: want none, got %s", got)
	}
}

func TestFilterCycleCoversAllFilters(t *testing.T) {
	s := newSim(t)
	seen := map[frame.Filter]bool{s.orch.Filter(): true}
	for i := 0; i < len(frame.Filters)-1; i++ {
		seen[s.orch.CycleFilter()] = true
	}
	if len(seen) != len(frame.Filters) {
		t.Errorf("cycle covered %d filters, want %d", len(seen), len(frame.Filters))
	}
	if got := s.orch.CycleFilter(); got != frame.FilterNone {
		t.Errorf("full cycle should return to %q, got %q", frame.FilterNone, got)
	}
}

func TestCountdownDisplaysThreeTwoOne(t *testing.T) {
	s := newSim(t)
	s.start()
	s.orch.HandleDecision(detect.DecisionSmile)

	if remaining, _ := s.orch.Countdown(); remaining != 3 {
		t.Errorf("initial display: want 3, got %d", remaining)
	}
	var shown []int
	for {
		res := s.orch.CountdownTick()
		if res.Done {
			if !res.Captured {
				t.Fatal("countdown completed without capture")
			}
			break
		}
		shown = append(shown, res.Remaining)
	}
	want := fmt.Sprint([]int{2, 1})
	if fmt.Sprint(shown) != want {
		t.Errorf("tick sequence: want %s, got %v", want, shown)
	}
}
