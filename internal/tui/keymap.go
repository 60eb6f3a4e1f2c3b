package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/Veraticus/collectorstream/internal/capture"
)

// KeyMap defines all keyboard shortcuts.
type KeyMap struct {
	Next    key.Binding
	Start   key.Binding
	Shoot   key.Binding
	Confirm key.Binding
	Retake  key.Binding
	Save    key.Binding
	Cancel  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "next step"),
		),
		Start: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new scan"),
		),
		Shoot: key.NewBinding(
			key.WithKeys(" ", "c"),
			key.WithHelp("Space/c", "capture"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "use photo"),
		),
		Retake: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retake"),
		),
		Save: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save card"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "cancel scan"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// forState enables only the bindings that act in the given state.
func (k KeyMap) forState(s capture.State) KeyMap {
	k.Start.SetEnabled(s == capture.StateReady)
	k.Shoot.SetEnabled(s.Scanning())
	review := s == capture.StateReviewFront || s == capture.StateReviewBack
	k.Confirm.SetEnabled(review)
	k.Retake.SetEnabled(review)
	k.Save.SetEnabled(s == capture.StateIdentified)
	k.Cancel.SetEnabled(s != capture.StateReady)
	k.Next.SetEnabled(s != capture.StateProcessing && s != capture.StateError)
	return k
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Cancel, k.Help, k.Quit}
}

// FullHelp returns all key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Start, k.Shoot},
		{k.Confirm, k.Retake, k.Save},
		{k.Cancel, k.Help, k.Quit},
	}
}
