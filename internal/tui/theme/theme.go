package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors for the TUI
type Theme struct {
	// Primary colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	// Text colors
	Text        lipgloss.Color
	TextMuted   lipgloss.Color
	TextInverse lipgloss.Color

	// Background colors
	Background          lipgloss.Color
	BackgroundSecondary lipgloss.Color

	// Status colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	// Border colors
	Border      lipgloss.Color
	BorderFocus lipgloss.Color

	// Speaker colors, assigned to personas by seat
	Personas []lipgloss.Color
}

// Current is the active theme
var Current = DefaultTheme()

// PersonaColor returns the color of the persona in the given seat
func (t Theme) PersonaColor(seat int) lipgloss.Color {
	if len(t.Personas) == 0 || seat < 0 {
		return t.Primary
	}
	return t.Personas[seat%len(t.Personas)]
}

// DefaultTheme returns the default roundtable theme (dark with a warm accent)
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#D2A679"), // Warm sandy accent
		Secondary: lipgloss.Color("#5A4E40"),
		Accent:    lipgloss.Color("#D2A679"),

		Text:        lipgloss.Color("#F0F0F0"),
		TextMuted:   lipgloss.Color("#888888"),
		TextInverse: lipgloss.Color("#1a1a1a"),

		Background:          lipgloss.Color("#1a1a1a"),
		BackgroundSecondary: lipgloss.Color("#2d2d2d"),

		Success: lipgloss.Color("#10B981"),
		Warning: lipgloss.Color("#F59E0B"),
		Error:   lipgloss.Color("#EF4444"),
		Info:    lipgloss.Color("#4D4D4D"),

		Border:      lipgloss.Color("#3d3d3d"),
		BorderFocus: lipgloss.Color("#D2A679"),

		Personas: []lipgloss.Color{
			lipgloss.Color("#3B82F6"), // blue
			lipgloss.Color("#22C55E"), // green
			lipgloss.Color("#A855F7"), // purple
			lipgloss.Color("#F97316"), // orange
			lipgloss.Color("#EC4899"), // pink
			lipgloss.Color("#06B6D4"), // cyan
		},
	}
}

// TokyoNight returns a Tokyo Night inspired theme
func TokyoNight() Theme {
	return Theme{
		Primary:             lipgloss.Color("#7AA2F7"),
		Secondary:           lipgloss.Color("#9ECE6A"),
		Accent:              lipgloss.Color("#FF9E64"),
		Text:                lipgloss.Color("#C0CAF5"),
		TextMuted:           lipgloss.Color("#565F89"),
		TextInverse:         lipgloss.Color("#1A1B26"),
		Background:          lipgloss.Color("#1A1B26"),
		BackgroundSecondary: lipgloss.Color("#24283B"),
		Success:             lipgloss.Color("#9ECE6A"),
		Warning:             lipgloss.Color("#E0AF68"),
		Error:               lipgloss.Color("#F7768E"),
		Info:                lipgloss.Color("#7AA2F7"),
		Border:              lipgloss.Color("#3B4261"),
		BorderFocus:         lipgloss.Color("#7AA2F7"),
		Personas: []lipgloss.Color{
			lipgloss.Color("#7AA2F7"),
			lipgloss.Color("#9ECE6A"),
			lipgloss.Color("#BB9AF7"),
			lipgloss.Color("#FF9E64"),
			lipgloss.Color("#F7768E"),
			lipgloss.Color("#7DCFFF"),
		},
	}
}

// ByName returns the named theme ("default" or "tokyonight")
func ByName(name string) (Theme, bool) {
	switch name {
	case "", "default":
		return DefaultTheme(), true
	case "tokyonight", "tokyo-night":
		return TokyoNight(), true
	}
	return Theme{}, false
}
