package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Blue color theme. Primary blue (#2e76b4) matches the self21 web frontend.
var (
	ColorBlue   = lipgloss.Color("#2e76b4") // primary brand color
	ColorWhite  = lipgloss.Color("#fafaf9")
	ColorMuted  = lipgloss.Color("#78716c")
	ColorGreen  = lipgloss.Color("#10b981") // pushed / success
	ColorRed    = lipgloss.Color("#f43f5e") // failed
	ColorYellow = lipgloss.Color("#eab308")
	ColorGray   = lipgloss.Color("#a8a29e")
)

// blueStyles returns charmbracelet/log styles with the blue theme.
func blueStyles() *log.Styles {
	styles := log.DefaultStyles()

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Foreground(ColorBlue).
		Bold(true)

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Foreground(ColorYellow).
		Bold(true)

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Foreground(ColorRed).
		Bold(true)

	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Foreground(ColorMuted)

	styles.Timestamp = lipgloss.NewStyle().
		Foreground(ColorMuted)

	styles.Key = lipgloss.NewStyle().
		Foreground(ColorBlue)

	styles.Value = lipgloss.NewStyle().
		Foreground(ColorGray)

	return styles
}
