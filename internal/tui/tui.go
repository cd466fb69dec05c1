// Package tui provides the Bubble Tea front-end for the photobooth.
// The Update loop is the orchestrator's single driver goroutine: all
// state mutation happens here, while frame capture and detection
// requests run inside tea.Cmd goroutines and report back as messages.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/smilebooth/internal/booth"
	"github.com/fakeyudi/smilebooth/internal/detect"
	"github.com/fakeyudi/smilebooth/internal/session"
	"github.com/fakeyudi/smilebooth/internal/strip"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	phaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(1, 4)

	bannerOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	bannerDownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	slotFilledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	slotEmptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Messages ─────────────────

// gen numbers tie scheduled ticks to the session run that armed them;
// a reset bumps the generation so stale timers fall through harmlessly.
type pollTickMsg struct{ gen int }

type detectionMsg struct {
	gen      int
	decision detect.Decision
	noFrame  bool
}

type countdownTickMsg struct{ gen int }

// refreshTickMsg periodically re-renders the view so the connectivity
// banner follows the monitor, which probes on its own goroutine.
type refreshTickMsg struct{}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the booth.
type Model struct {
	orch      *booth.Orchestrator
	monitor   *detect.Monitor
	outputDir string

	width  int
	height int
	gen    int

	captionInput textinput.Model
	captioning   bool
	confirmSlot  int // pending retake slot awaiting y/n, -1 when none

	status    string
	lastError string
	savedPath string
}

// New creates the booth model.
func New(orch *booth.Orchestrator, monitor *detect.Monitor, outputDir string) Model {
	ti := textinput.New()
	ti.Placeholder = "caption (max 60 chars)"
	ti.CharLimit = session.MaxCaptionLen
	ti.Width = 40

	return Model{
		orch:         orch,
		monitor:      monitor,
		outputDir:    outputDir,
		captionInput: ti,
		confirmSlot:  -1,
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return refreshTick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case refreshTickMsg:
		return m, refreshTick()

	case pollTickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.stepPolling()

	case detectionMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.handleDetection(msg)

	case countdownTickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.handleCountdownTick()
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Caption edit mode swallows everything except enter/esc.
	if m.captioning {
		switch msg.String() {
		case "enter":
			m.orch.SetCaption(m.captionInput.Value())
			m.captioning = false
			m.status = "caption set"
			return m, nil
		case "esc":
			m.captioning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.captionInput, cmd = m.captionInput.Update(msg)
		return m, cmd
	}

	// Pending retake confirmation: strict y/n gate.
	if m.confirmSlot >= 0 {
		switch msg.String() {
		case "y", "Y":
			slot := m.confirmSlot
			m.confirmSlot = -1
			return m.beginRetake(slot)
		case "n", "N", "esc":
			m.confirmSlot = -1
			m.status = "retake cancelled"
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.orch.Reset()
		m.monitor.Stop()
		return m, tea.Quit

	case "esc":
		m.orch.Reset()
		m.gen++ // invalidate every scheduled tick
		m.status = "session reset"
		m.savedPath = ""
		m.lastError = ""
		return m, nil

	case "s":
		if m.orch.Phase() != session.PhaseIdle {
			return m, nil
		}
		if err := m.orch.Start(context.Background()); err != nil {
			m.lastError = err.Error()
			return m, nil
		}
		m.lastError = ""
		m.status = "watching for smiles…"
		m.gen++
		return m, pollTick(m.gen, m.orch.Intervals().Base)

	case " ":
		started, err := m.orch.ManualTrigger(context.Background())
		if err != nil {
			m.lastError = err.Error()
			return m, nil
		}
		if started {
			m.status = "manual trigger"
			return m, countdownTick(m.gen, m.orch.Intervals().CountdownTick)
		}
		return m, nil

	case "f":
		m.status = "filter: " + string(m.orch.CycleFilter())
		return m, nil

	case "c":
		if m.orch.Phase() == session.PhasePreview {
			m.captioning = true
			m.captionInput.SetValue(m.orch.Session().Caption())
			m.captionInput.Focus()
			return m, textinput.Blink
		}

	case "1", "2", "3":
		if m.orch.Phase() == session.PhasePreview {
			m.confirmSlot = int(msg.String()[0] - '1')
		}
		return m, nil

	case "enter":
		return m.composeStrip()
	}
	return m, nil
}

// ── Orchestration driving ─────────────────────────────────────────────

// stepPolling consults the orchestrator for the next directive and
// either stops, waits, or samples a frame for detection.
func (m Model) stepPolling() (tea.Model, tea.Cmd) {
	step := m.orch.PollStep()
	switch step.Kind {
	case booth.StepStop:
		return m, nil
	case booth.StepWait:
		return m, pollTick(m.gen, step.Delay)
	default:
		ctx := m.orch.BeginDetection(context.Background())
		gen := m.gen
		orch := m.orch
		return m, func() tea.Msg {
			raw, err := orch.SampleRaw()
			if err != nil {
				return detectionMsg{gen: gen, noFrame: true}
			}
			return detectionMsg{gen: gen, decision: orch.DetectFrame(ctx, raw)}
		}
	}
}

func (m Model) handleDetection(msg detectionMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if !msg.noFrame {
		if m.orch.HandleDecision(msg.decision) {
			m.status = "smile! get ready…"
			cmds = append(cmds, countdownTick(m.gen, m.orch.Intervals().CountdownTick))
		}
	}
	// Re-arm the loop; PollStep picks the right delay for the new state.
	if step := m.orch.PollStep(); step.Kind != booth.StepStop {
		cmds = append(cmds, pollTick(m.gen, step.Delay))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleCountdownTick() (tea.Model, tea.Cmd) {
	res := m.orch.CountdownTick()
	if !res.Done {
		m.status = fmt.Sprintf("smile! %d…", res.Remaining)
		return m, countdownTick(m.gen, m.orch.Intervals().CountdownTick)
	}
	if res.Err != nil {
		m.lastError = res.Err.Error()
		return m, nil
	}
	if res.Captured {
		if m.orch.Phase() == session.PhasePreview {
			m.status = "all three captured — review your strip"
		} else {
			m.status = fmt.Sprintf("captured %d of %d", m.orch.Session().PhotoCount(), session.MaxPhotos)
		}
	}
	return m, nil
}

func (m Model) beginRetake(slot int) (tea.Model, tea.Cmd) {
	warmup, err := m.orch.Retake(context.Background(), slot)
	if err != nil {
		m.lastError = err.Error()
		return m, nil
	}
	m.lastError = ""
	m.status = fmt.Sprintf("retaking photo %d…", slot+1)
	m.gen++
	return m, pollTick(m.gen, warmup)
}

func (m Model) composeStrip() (tea.Model, tea.Cmd) {
	if m.orch.Phase() != session.PhasePreview {
		return m, nil
	}
	artifact, err := m.orch.Compose()
	if err != nil {
		m.lastError = err.Error()
		return m, nil
	}
	path, err := strip.SaveArtifact(m.outputDir, artifact, time.Now())
	if err != nil {
		m.lastError = err.Error()
		return m, nil
	}
	m.savedPath = path
	m.status = "strip saved"
	return m, nil
}

// ── Scheduling helpers ────────────────────────────────────────────────

func pollTick(gen int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return pollTickMsg{gen: gen} })
}

func countdownTick(gen int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return countdownTickMsg{gen: gen} })
}

func refreshTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

// ── View ──────────────────────────────────────────────────────────────

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("  smilebooth  ") + "\n\n")
	sb.WriteString(m.renderBanner() + "\n")
	sb.WriteString(labelStyle.Render("  Phase:   ") + phaseStyle.Render(m.orch.Phase().String()) + "\n")
	sb.WriteString(labelStyle.Render("  Filter:  ") + string(m.orch.Filter()) + "\n")
	sb.WriteString(labelStyle.Render("  Photos:  ") + m.renderSlots() + "\n")

	if remaining, active := m.orch.Countdown(); active {
		sb.WriteString("\n" + countdownStyle.Render(fmt.Sprintf("  %d  ", remaining)) + "\n")
	}

	if m.captioning {
		sb.WriteString("\n  " + m.captionInput.View() + "\n")
	}
	if m.confirmSlot >= 0 {
		sb.WriteString(fmt.Sprintf("\n  retake photo %d? (y/n)\n", m.confirmSlot+1))
	}
	if m.status != "" {
		sb.WriteString("\n  " + m.status + "\n")
	}
	if m.savedPath != "" {
		sb.WriteString(dimStyle.Render("  saved: "+m.savedPath) + "\n")
	}
	if m.lastError != "" {
		sb.WriteString(errStyle.Render("  error: "+m.lastError) + "\n")
	}

	sb.WriteString("\n" + statusBarStyle.Render(m.hint()))
	return sb.String()
}

func (m Model) renderBanner() string {
	status := m.monitor.Status()
	if status.Connected {
		return bannerOKStyle.Render("  ● backend connected")
	}
	msg := status.Message
	if msg == "" {
		msg = "checking backend…"
	}
	return bannerDownStyle.Render("  ○ " + msg)
}

func (m Model) renderSlots() string {
	count := m.orch.Session().PhotoCount()
	parts := make([]string, session.MaxPhotos)
	for i := 0; i < session.MaxPhotos; i++ {
		if i < count {
			parts[i] = slotFilledStyle.Render("◉")
		} else {
			parts[i] = slotEmptyStyle.Render("○")
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) hint() string {
	switch m.orch.Phase() {
	case session.PhaseIdle:
		return " s start  f filter  q quit"
	case session.PhaseCapturing:
		if m.orch.Connected() {
			return " space manual capture  f filter  esc reset  q quit"
		}
		return " f filter  esc reset  q quit  (manual capture needs backend)"
	case session.PhasePreview:
		return " enter compose strip  c caption  1-3 retake  esc reset  q quit"
	default:
		return " esc new session  q quit"
	}
}

// Run starts the booth TUI and blocks until quit.
func Run(orch *booth.Orchestrator, monitor *detect.Monitor, outputDir string) error {
	p := tea.NewProgram(New(orch, monitor, outputDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
