// Package tui is the interactive terminal front end for scanning cards.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/collectorstream/internal/capture"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/tui/themes"
)

// Controller is the part of the capture machine the UI drives.
type Controller interface {
	Events() <-chan capture.Event
	Snapshot() capture.Snapshot
	StartScan() error
	Capture(ctx context.Context) error
	ConfirmFront() error
	RetakeFront() error
	ConfirmBack() error
	RetakeBack() error
	Cancel() error
	Save(ctx context.Context, edits capture.Edits) (int64, error)
}

// Model holds the scan UI state.
type Model struct {
	ctx       context.Context
	machine   Controller
	lastError error
	preview   *model.QualityScore
	theme     themes.Theme
	snapshot  capture.Snapshot
	help      help.Model
	spinner   spinner.Model
	keymap    KeyMap
	saved     []int64
	width     int
	height    int
	quitting  bool
}

// New creates a model over a capture machine.
func New(ctx context.Context, machine Controller, theme themes.Theme) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = theme.StatusInfo

	return Model{
		ctx:      ctx,
		machine:  machine,
		theme:    theme,
		snapshot: machine.Snapshot(),
		help:     help.New(),
		spinner:  s,
		keymap:   DefaultKeyMap(),
		width:    80,
		height:   24,
	}
}

// Saved returns the IDs of cards stored during the session.
func (m Model) Saved() []int64 {
	return m.saved
}

// Init starts listening for machine events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.applyEvent(msg.event)
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case savedMsg:
		m.lastError = nil
		return m, nil

	case errorMsg:
		m.lastError = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applyEvent(ev capture.Event) {
	switch ev.Kind {
	case capture.EventPreview:
		m.preview = ev.Quality
		return
	case capture.EventSaved:
		m.saved = append(m.saved, ev.CardID)
	case capture.EventState:
		if ev.Snapshot.State != m.snapshot.State {
			m.preview = nil
		}
	}
	m.snapshot = ev.Snapshot
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keymap.forState(m.snapshot.State)

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, keys.Cancel):
		return m, m.do("cancel", m.machine.Cancel)
	case key.Matches(msg, keys.Start):
		return m, m.do("start", m.machine.StartScan)
	case key.Matches(msg, keys.Shoot):
		return m, m.do("capture", m.capture)
	case key.Matches(msg, keys.Confirm):
		return m, m.do("confirm", m.confirm)
	case key.Matches(msg, keys.Retake):
		return m, m.do("retake", m.retake)
	case key.Matches(msg, keys.Save):
		return m, m.save()
	case key.Matches(msg, keys.Next):
		return m, m.next()
	}
	return m, nil
}

// next performs the primary action of the current state.
func (m Model) next() tea.Cmd {
	switch state := m.snapshot.State; {
	case state == capture.StateReady:
		return m.do("start", m.machine.StartScan)
	case state.Scanning():
		return m.do("capture", m.capture)
	case state == capture.StateReviewFront || state == capture.StateReviewBack:
		return m.do("confirm", m.confirm)
	case state == capture.StateIdentified:
		return m.save()
	}
	return nil
}

func (m Model) capture() error {
	return m.machine.Capture(m.ctx)
}

func (m Model) confirm() error {
	if m.snapshot.State == capture.StateReviewFront {
		return m.machine.ConfirmFront()
	}
	return m.machine.ConfirmBack()
}

func (m Model) retake() error {
	if m.snapshot.State == capture.StateReviewFront {
		return m.machine.RetakeFront()
	}
	return m.machine.RetakeBack()
}

func (m Model) save() tea.Cmd {
	machine, ctx := m.machine, m.ctx
	return func() tea.Msg {
		id, err := machine.Save(ctx, capture.Edits{})
		if err != nil {
			return errorMsg{err: err, action: "save"}
		}
		return savedMsg{id: id}
	}
}

// do runs a machine action off the update loop.
func (m Model) do(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errorMsg{err: err, action: action}
		}
		return nil
	}
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.machine.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// errorText renders a user-facing error without wrapping noise.
func errorText(err error) string {
	if errors.Is(err, capture.ErrBusy) {
		return "Still working on the last photo."
	}
	return err.Error()
}
