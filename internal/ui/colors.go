package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/status"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title     lipgloss.Style
	ok        lipgloss.Style
	err       lipgloss.Style
	warn      lipgloss.Style
	help      lipgloss.Style
	tab       lipgloss.Style
	activeTab lipgloss.Style
	box       lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:     NewBold(t).MarginBottom(1),
		ok:        NewBold(s),
		err:       NewBold(e),
		warn:      NewStyle(w),
		help:      NewEm(h),
		tab:       NewStyle(h).Padding(0, 1),
		activeTab: NewBold("#FFFFFF").Background(lipgloss.Color(t)).Padding(0, 1),
		box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(t)).Padding(0, 1),
	}
}

func (p *Palette) As(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

func (p *Palette) On(s string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(s)
}

var _ Painter = (*Palette)(nil)

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// categoryColors follows the badge colors of the web dashboard.
var categoryColors = map[status.Category]lipgloss.Color{
	status.Pending:   "#9CA3AF",
	status.Preparing: "#3B82F6",
	status.Ready:     "#EAB308",
	status.Uploading: "#A855F7",
	status.Completed: "#22C55E",
	status.Failed:    "#EF4444",
	status.Unknown:   "#6B7280",
}

// badge renders the status label of code in its category color.
func badge(code string) string {
	c := status.Classify(code)
	label := c.Label
	if c.Animated {
		label = "◐ " + label
	}
	return styles.As(label, categoryColors[c.Category])
}

func stepBadge(s models.StepStatus) string {
	label := status.StepStatusLabel(s)
	switch s {
	case models.StepCompleted:
		return styles.ok.Render("✓ " + label)
	case models.StepFailed:
		return styles.err.Render("✗ " + label)
	case models.StepRunning:
		return styles.warn.Render("◐ " + label)
	default:
		return styles.help.Render("· " + label)
	}
}
