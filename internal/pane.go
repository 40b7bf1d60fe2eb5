package multinodetop

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Pane is a bordered, titled box of text for the plain report.
//
//	pane := NewPane("Totals", 0, 0).
//	    SetContent("Active CPUs: 3\nTotal CPUs:  8").
//	    SetAlert(stale)
//	fmt.Println(pane.Render())
//
// A zero width or height lets the content decide.
type Pane struct {
	title       string
	content     string
	width       int
	height      int
	borderStyle lipgloss.Style
	titleStyle  lipgloss.Style
}

func NewPane(title string, width, height int) Pane {
	return Pane{
		title:  title,
		width:  width,
		height: height,
		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true),
	}
}

func (p Pane) SetContent(content string) Pane {
	p.content = content
	return p
}

// SetAlert draws the border in red while the data inside is stale
func (p Pane) SetAlert(alert bool) Pane {
	if alert {
		p.borderStyle = p.borderStyle.BorderForeground(lipgloss.Color("196"))
	} else {
		p.borderStyle = p.borderStyle.BorderForeground(lipgloss.Color("240"))
	}
	return p
}

func (p Pane) Render() string {
	var b strings.Builder
	if p.title != "" {
		b.WriteString(p.titleStyle.Render(p.title) + "\n")
	}
	b.WriteString(p.content)

	style := p.borderStyle
	if p.width > 0 {
		style = style.Width(p.width)
	}
	if p.height > 0 {
		style = style.Height(p.height)
	}
	return style.Render(b.String())
}
