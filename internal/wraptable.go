package multinodetop

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// WrapTable is a lipgloss table that continues in a new column to the right
// once it would grow taller than maxHeight lines, so a long worker list stays
// on one screen.
type WrapTable struct {
	headers     []string
	rows        [][]string
	maxHeight   int
	borderStyle lipgloss.Style
}

func NewWrapTable() *WrapTable {
	return &WrapTable{
		borderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (wt *WrapTable) Headers(headers ...string) *WrapTable {
	wt.headers = headers
	return wt
}

func (wt *WrapTable) Rows(rows ...[]string) *WrapTable {
	wt.rows = rows
	return wt
}

// MaxHeight limits the rendered height. Zero means unlimited.
func (wt *WrapTable) MaxHeight(height int) *WrapTable {
	wt.maxHeight = height
	return wt
}

// RowsPerColumn is how many rows fit under one header block
func (wt *WrapTable) RowsPerColumn() int {
	if wt.maxHeight <= 0 {
		return max(len(wt.rows), 1)
	}
	// header line plus top, bottom and header separator borders
	return max(wt.maxHeight-4, 1)
}

func (wt *WrapTable) Render() string {
	if len(wt.rows) == 0 {
		return ""
	}

	perColumn := wt.RowsPerColumn()
	var columns []string
	for start := 0; start < len(wt.rows); start += perColumn {
		end := min(start+perColumn, len(wt.rows))
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(wt.borderStyle).
			Headers(wt.headers...).
			Rows(wt.rows[start:end]...)
		columns = append(columns, t.String())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func (wt *WrapTable) String() string {
	return wt.Render()
}
