package layout

import (
	"github.com/charmbracelet/lipgloss"
)

// SplitPane lays out the watch view: a fixed header and footer around a body
// that is split between the transcript and an optional side panel.
type SplitPane struct {
	Width  int
	Height int

	HeaderHeight int
	FooterHeight int

	// Share of the body width given to the transcript when the side panel shows
	LeftRatio float64

	// Minimum width of the side panel; narrower terminals hide it
	MinRightWidth int

	ShowRight bool
}

// NewSplitPane creates a split pane layout
func NewSplitPane(width, height int) *SplitPane {
	return &SplitPane{
		Width:         width,
		Height:        height,
		HeaderHeight:  3,
		FooterHeight:  1,
		LeftRatio:     0.75,
		MinRightWidth: 24,
		ShowRight:     true,
	}
}

// SetSize updates the pane dimensions
func (s *SplitPane) SetSize(width, height int) {
	s.Width = width
	s.Height = height
}

// BodyHeight returns the height between header and footer
func (s *SplitPane) BodyHeight() int {
	return max(s.Height-s.HeaderHeight-s.FooterHeight, 1)
}

// RightVisible reports whether the side panel fits and is enabled
func (s *SplitPane) RightVisible() bool {
	return s.ShowRight && s.Width-int(float64(s.Width)*s.LeftRatio) >= s.MinRightWidth
}

// LeftWidth returns the width of the transcript
func (s *SplitPane) LeftWidth() int {
	if !s.RightVisible() {
		return s.Width
	}
	return int(float64(s.Width) * s.LeftRatio)
}

// RightWidth returns the width of the side panel
func (s *SplitPane) RightWidth() int {
	if !s.RightVisible() {
		return 0
	}
	return s.Width - s.LeftWidth()
}

// Render stacks header, body and footer
func (s *SplitPane) Render(header, left, right, footer string) string {
	bodyHeight := s.BodyHeight()

	body := lipgloss.NewStyle().Width(s.LeftWidth()).Height(bodyHeight).Render(left)
	if s.RightVisible() && right != "" {
		body = lipgloss.JoinHorizontal(
			lipgloss.Top,
			body,
			lipgloss.NewStyle().Width(s.RightWidth()).Height(bodyHeight).Render(right),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
