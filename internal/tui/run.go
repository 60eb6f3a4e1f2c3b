package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/collectorstream/internal/tui/themes"
)

// Run shows the scan UI until the user quits or ctx ends, returning the IDs
// of saved cards.
func Run(ctx context.Context, machine Controller, theme themes.Theme, opts ...tea.ProgramOption) ([]int64, error) {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(New(ctx, machine, theme), opts...)

	final, err := program.Run()
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("scan UI failed: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Saved(), nil
	}
	return nil, nil
}
