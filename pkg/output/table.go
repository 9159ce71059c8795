package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ImageSummary contains data for one row of the build summary table.
type ImageSummary struct {
	Ref      string
	Kind     string // local, registry
	Platform string
	State    string // built, pushed, failed
}

// Summary prints the final build summary table.
func (p *Printer) Summary(images []ImageSummary) {
	if len(images) == 0 {
		return
	}

	p.Println()

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"Reference", "Kind", "Platform", "State"})

	for _, img := range images {
		state := img.State
		if p.isTTY {
			state = colorState(img.State)
		}
		t.AppendRow(table.Row{img.Ref, img.Kind, img.Platform, state})
	}

	t.Render()
	p.Println()
}

// colorState applies color to a state cell.
func colorState(state string) string {
	var style lipgloss.Style
	switch state {
	case "built", "pushed":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "failed":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "skipped":
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(state)
}

// RunInstructions prints a ready-to-paste docker run example for the built
// image. The server reads its paths and log level from the environment and
// serves on port 8000; the image's entrypoint wrapper handles directory
// symlinks and privilege drop before the server starts.
func (p *Printer) RunInstructions(ref string) {
	p.Section("RUN")
	p.Print("  docker run --rm -p 8000:8000 \\\n")
	p.Print("    -e DATABASE_PATH=/data/db \\\n")
	p.Print("    -e MEDIA_PATH=/data/media \\\n")
	p.Print("    -e SELF21_LOG_LEVEL=info \\\n")
	p.Print("    -v self21-data:/data \\\n")
	p.Print("    %s\n\n", ref)
}

// tableStyle returns the standard blue-themed table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiBlue, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}
