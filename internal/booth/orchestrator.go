// Package booth contains the capture orchestrator: the state machine
// that interleaves smile polling, the countdown, retakes, rate
// limiting, and cancellation for a photobooth session.
//
// The orchestrator is single-threaded by contract: every method that
// mutates state must be called from one driver goroutine (the TUI's
// Update loop, or a test harness). Driver goroutines spawned for IO
// (frame capture + detection requests) report back as messages; the
// pollActive flag is re-checked on delivery, immediately before any
// mutation, so a reset always wins the race.
package booth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/looplab/fsm"

	"github.com/fakeyudi/smilebooth/internal/detect"
	"github.com/fakeyudi/smilebooth/internal/frame"
	"github.com/fakeyudi/smilebooth/internal/session"
	"github.com/fakeyudi/smilebooth/internal/strip"
)

// ErrNotConnected gates the manual trigger on backend connectivity.
var ErrNotConnected = errors.New("detection backend not connected")

// ErrBadPhase is returned for operations invoked outside their phase.
var ErrBadPhase = errors.New("operation not valid in current phase")

// Detector is the orchestrator's view of the detection service.
// detect.Client + detect.Monitor satisfy it via Backend.
type Detector interface {
	// Poll returns the tri-state decision for a raw frame.
	Poll(ctx context.Context, jpeg []byte) detect.Decision
	// NotifyManual is the fire-and-forget manual-capture notification.
	NotifyManual(ctx context.Context, jpeg []byte) error
	// Connected reports current backend connectivity.
	Connected() bool
}

// Intervals are the timing knobs of the polling loop.
type Intervals struct {
	Base          time.Duration // re-arm delay between detection polls
	Hold          time.Duration // re-check delay while the cooldown has not elapsed
	CountdownIdle time.Duration // re-check delay while a countdown runs
	Cooldown      time.Duration // minimum gap between successive triggers
	CountdownTick time.Duration // one countdown step
	RetakeWarmup  time.Duration // poll restart delay after re-acquiring the source
}

// DefaultIntervals returns the production timing.
func DefaultIntervals() Intervals {
	return Intervals{
		Base:          900 * time.Millisecond,
		Hold:          time.Second,
		CountdownIdle: 1400 * time.Millisecond,
		Cooldown:      4800 * time.Millisecond,
		CountdownTick: time.Second,
		RetakeWarmup:  time.Second,
	}
}

// CountdownStart is the first displayed countdown value.
const CountdownStart = 3

// Countdown is the in-progress countdown. Its existence is the
// "active" flag: at most one lives at a time.
type Countdown struct {
	Remaining int
}

// StepKind tells the driver what to do after a poll step.
type StepKind int

const (
	// StepStop ends the polling loop; no re-arm.
	StepStop StepKind = iota
	// StepWait re-arms the loop after Delay without sampling.
	StepWait
	// StepSample captures a raw frame, runs detection, then re-arms
	// after Delay.
	StepSample
)

// Step is one polling-loop directive.
type Step struct {
	Kind  StepKind
	Delay time.Duration
}

// Clock abstracts time for the cooldown logic so tests can drive it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// fsm states and events for the session lifecycle.
const (
	stateIdle      = "idle"
	stateCapturing = "capturing"
	statePreview   = "preview"
	stateFinal     = "final"
)

// Orchestrator owns the session for the duration of a run. All mutable
// loop state (poll flag, last trigger time, current filter, countdown)
// lives here as explicit fields, read fresh by every continuation.
type Orchestrator struct {
	source   frame.Source
	detector Detector
	clock    Clock
	iv       Intervals
	composer strip.Composer
	log      *log.Logger

	sess    *session.Session
	machine *fsm.FSM

	pollActive  bool
	srcOpen     bool
	lastTrigger time.Time
	countdown   *Countdown
	cancelPoll  context.CancelFunc
	filter      frame.Filter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock substitutes the time source, used by tests.
func WithClock(c Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithIntervals overrides the loop timing, used by tests.
func WithIntervals(iv Intervals) Option { return func(o *Orchestrator) { o.iv = iv } }

// WithLogger sets the orchestrator logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.log = l.With("component", "booth") }
}

// New returns an idle orchestrator over the given source and detector.
func New(source frame.Source, detector Detector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		detector: detector,
		clock:    systemClock{},
		iv:       DefaultIntervals(),
		log:      log.Default().With("component", "booth"),
		sess:     session.New(),
		filter:   frame.FilterNone,
	}
	o.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: "start", Src: []string{stateIdle}, Dst: stateCapturing},
			{Name: "preview", Src: []string{stateCapturing}, Dst: statePreview},
			{Name: "retake", Src: []string{statePreview}, Dst: stateCapturing},
			{Name: "compose", Src: []string{statePreview}, Dst: stateFinal},
			{Name: "reset", Src: []string{stateIdle, stateCapturing, statePreview, stateFinal}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				o.log.Debug("phase transition", "from", e.Src, "to", e.Dst)
			},
		},
	)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session exposes the state container for rendering.
func (o *Orchestrator) Session() *session.Session { return o.sess }

// Phase returns the current session phase.
func (o *Orchestrator) Phase() session.Phase { return o.sess.Phase() }

// Filter returns the cosmetic filter applied to the next stored photo.
func (o *Orchestrator) Filter() frame.Filter { return o.filter }

// SetFilter selects the filter for subsequent captures. Unknown names
// are ignored.
func (o *Orchestrator) SetFilter(f frame.Filter) {
	if f.Valid() {
		o.filter = f
	}
}

// CycleFilter advances to the next filter and returns it.
func (o *Orchestrator) CycleFilter() frame.Filter {
	o.filter = o.filter.Next()
	return o.filter
}

// SetCaption stores the strip caption (truncated by the session).
func (o *Orchestrator) SetCaption(text string) { o.sess.SetCaption(text) }

// Countdown returns the remaining display value and whether a
// countdown is running.
func (o *Orchestrator) Countdown() (int, bool) {
	if o.countdown == nil {
		return 0, false
	}
	return o.countdown.Remaining, true
}

// Connected reports detection-backend connectivity.
func (o *Orchestrator) Connected() bool { return o.detector.Connected() }

// Intervals returns the loop timing in effect.
func (o *Orchestrator) Intervals() Intervals { return o.iv }

// Start moves idle → capturing: clears the photo sequence, acquires
// the frame source, and activates polling. A source failure is
// user-visible and leaves the session idle.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.machine.Can("start") {
		return fmt.Errorf("%w: session is %s", ErrBadPhase, o.sess.Phase())
	}

	o.sess.Reset()
	if err := o.openSource(ctx); err != nil {
		return err
	}

	_ = o.machine.Event("start")
	o.sess.SetPhase(session.PhaseCapturing)
	o.pollActive = true
	o.lastTrigger = time.Time{}
	o.log.Info("session started", "id", o.sess.ID)
	return nil
}

// PollStep evaluates the polling rules in order and returns the next
// directive. Runs only while capturing; drivers call it before every
// iteration and after every detection result.
func (o *Orchestrator) PollStep() Step {
	// Deactivated, or the sequence filled with no retake pending: stop
	// without re-arming. The third commit clears pollActive in the same
	// call that flips the phase, so a full sequence is never polled
	// again.
	if !o.pollActive || (o.sess.Full() && o.sess.RetakeTarget() < 0) {
		return Step{Kind: StepStop}
	}
	// Countdown running: no sampling, just a longer idle re-check.
	if o.countdown != nil {
		return Step{Kind: StepWait, Delay: o.iv.CountdownIdle}
	}
	// Cooldown since the last trigger not yet elapsed: hold off so a
	// capture cannot immediately re-trigger.
	if !o.lastTrigger.IsZero() && o.clock.Now().Sub(o.lastTrigger) < o.iv.Cooldown {
		return Step{Kind: StepWait, Delay: o.iv.Hold}
	}
	return Step{Kind: StepSample, Delay: o.iv.Base}
}

// SampleRaw captures an unfiltered still for detection. Called from
// the driver's IO goroutine; it does not mutate orchestrator state.
func (o *Orchestrator) SampleRaw() (*frame.Frame, error) {
	return o.source.Still(frame.FilterNone)
}

// DetectFrame forwards a raw frame to the detector. Like SampleRaw it
// runs on the driver's IO goroutine and touches no mutable state.
func (o *Orchestrator) DetectFrame(ctx context.Context, f *frame.Frame) detect.Decision {
	return o.detector.Poll(ctx, f.Data)
}

// BeginDetection cancels any outstanding detection request and returns
// a fresh context for the next one, keeping at most one in flight.
func (o *Orchestrator) BeginDetection(parent context.Context) context.Context {
	if o.cancelPoll != nil {
		o.cancelPoll()
	}
	ctx, cancel := context.WithCancel(parent)
	o.cancelPoll = cancel
	return ctx
}

// HandleDecision feeds a detection result back into the loop. A smile
// starts the countdown unless polling has been deactivated or a
// countdown is already running; the trigger timestamp is recorded for
// the cooldown. Reports whether a countdown was started.
func (o *Orchestrator) HandleDecision(d detect.Decision) bool {
	if d != detect.DecisionSmile {
		return false
	}
	if !o.pollActive || o.countdown != nil {
		return false
	}
	o.lastTrigger = o.clock.Now()
	o.countdown = &Countdown{Remaining: CountdownStart}
	o.log.Info("smile detected, countdown started")
	return true
}

// TickResult reports the outcome of one countdown tick.
type TickResult struct {
	Remaining int  // display value after the tick
	Captured  bool // a photo was committed this tick
	Done      bool // the countdown no longer runs
	Err       error
}

// CountdownTick advances the countdown by one step. At zero it stops
// the timer, captures a filtered still, and commits it — overwriting
// the retake target if one is set, appending otherwise. The commit is
// skipped when polling was deactivated after the countdown started.
// Committing the third photo deactivates polling, transitions to
// preview, and releases the source, all within this call.
func (o *Orchestrator) CountdownTick() TickResult {
	if o.countdown == nil {
		return TickResult{Done: true}
	}
	o.countdown.Remaining--
	if o.countdown.Remaining > 0 {
		return TickResult{Remaining: o.countdown.Remaining}
	}
	o.countdown = nil

	// A reset between countdown start and completion wins: no photo.
	if !o.pollActive {
		return TickResult{Done: true}
	}

	still, err := o.source.Still(o.filter)
	if err != nil {
		o.log.Warn("capture at countdown zero failed", "err", err)
		return TickResult{Done: true, Err: fmt.Errorf("capturing photo: %w", err)}
	}

	if target := o.sess.RetakeTarget(); target >= 0 {
		if err := o.sess.SetPhoto(target, *still); err != nil {
			return TickResult{Done: true, Err: err}
		}
		o.sess.ClearRetakeTarget()
		o.log.Info("retake committed", "slot", target)
	} else {
		if err := o.sess.AddPhoto(*still); err != nil {
			return TickResult{Done: true, Err: err}
		}
		o.log.Info("photo committed", "count", o.sess.PhotoCount())
	}

	if o.sess.Full() {
		o.pollActive = false
		_ = o.machine.Event("preview")
		o.sess.SetPhase(session.PhasePreview)
		o.closeSource()
	}
	return TickResult{Captured: true, Done: true}
}

// ManualTrigger captures a raw frame, notifies the backend best-effort,
// and starts the countdown directly, bypassing detection. Gated on
// connectivity; a running countdown makes it a no-op. Reports whether
// a countdown was started.
func (o *Orchestrator) ManualTrigger(ctx context.Context) (bool, error) {
	if !o.detector.Connected() {
		return false, ErrNotConnected
	}
	if o.sess.Phase() != session.PhaseCapturing || !o.pollActive {
		return false, fmt.Errorf("%w: session is %s", ErrBadPhase, o.sess.Phase())
	}
	if o.countdown != nil {
		return false, nil
	}

	raw, err := o.source.Still(frame.FilterNone)
	if err != nil {
		return false, fmt.Errorf("capturing trigger frame: %w", err)
	}
	// Failure here is non-fatal and never reaches the user.
	if err := o.detector.NotifyManual(ctx, raw.Data); err != nil {
		o.log.Debug("manual capture notify failed", "err", err)
	}

	o.lastTrigger = o.clock.Now()
	o.countdown = &Countdown{Remaining: CountdownStart}
	o.log.Info("manual trigger, countdown started")
	return true, nil
}

// Retake moves preview → capturing with slot i as the overwrite
// target. The caller obtains user confirmation first. Returns the
// warmup delay after which the driver restarts polling.
func (o *Orchestrator) Retake(ctx context.Context, i int) (time.Duration, error) {
	if !o.machine.Can("retake") {
		return 0, fmt.Errorf("%w: session is %s", ErrBadPhase, o.sess.Phase())
	}
	if err := o.sess.SetRetakeTarget(i); err != nil {
		return 0, err
	}
	if err := o.openSource(ctx); err != nil {
		o.sess.ClearRetakeTarget()
		return 0, err
	}

	_ = o.machine.Event("retake")
	o.sess.SetPhase(session.PhaseCapturing)
	o.pollActive = true
	o.log.Info("retake started", "slot", i)
	return o.iv.RetakeWarmup, nil
}

// Compose builds the strip artifact from the three photos and the
// caption, moving preview → final. With fewer than three photos it is
// a no-op returning strip.ErrPhotoCount.
func (o *Orchestrator) Compose() ([]byte, error) {
	if !o.machine.Can("compose") {
		return nil, fmt.Errorf("%w: session is %s", ErrBadPhase, o.sess.Phase())
	}
	artifact, err := o.composer.Compose(o.sess.Photos(), o.sess.Caption())
	if err != nil {
		return nil, err
	}
	_ = o.machine.Event("compose")
	o.sess.SetPhase(session.PhaseFinal)
	o.log.Info("strip composed", "bytes", len(artifact))
	return artifact, nil
}

// Reset is idempotent and safe from any state, including mid-countdown
// and mid-poll: it synchronously clears the poll flag (the guard every
// continuation checks before mutating), cancels the outstanding
// detection request, drops the countdown, clears the session, and
// releases the source exactly once.
func (o *Orchestrator) Reset() {
	o.pollActive = false
	if o.cancelPoll != nil {
		o.cancelPoll()
		o.cancelPoll = nil
	}
	o.countdown = nil
	o.closeSource()
	o.sess.Reset()
	if o.machine.Current() != stateIdle {
		_ = o.machine.Event("reset")
	}
	o.log.Info("session reset")
}

func (o *Orchestrator) openSource(ctx context.Context) error {
	if o.srcOpen {
		return nil
	}
	if err := o.source.Open(ctx); err != nil {
		return fmt.Errorf("acquiring frame source: %w", err)
	}
	o.srcOpen = true
	return nil
}

// closeSource releases the frame source at most once per acquisition.
func (o *Orchestrator) closeSource() {
	if !o.srcOpen {
		return
	}
	if err := o.source.Close(); err != nil {
		o.log.Warn("releasing frame source", "err", err)
	}
	o.srcOpen = false
}
