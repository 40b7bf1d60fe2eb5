package multinodetop

import (
	"github.com/charmbracelet/lipgloss"
)

// Horizontal renders panes side by side
func Horizontal(panes ...Pane) string {
	views := make([]string, len(panes))
	for i, pane := range panes {
		views[i] = pane.Render()
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}
