package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/snapcomp/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(12)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleCached   = lipgloss.NewStyle().Foreground(colorGreen)
	styleComputed = lipgloss.NewStyle().Foreground(colorGray)

	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
	iconCached  = "cached"
	iconFresh   = "fresh"
	iconPassed  = "pass-through"
)

// =============================================================================
// Printer
// =============================================================================

// printer writes styled status lines to one writer.
type printer struct {
	w io.Writer
}

func (c *CLI) printer() printer {
	return printer{w: c.Out}
}

// success prints a success message.
func (p printer) success(format string, args ...any) {
	fmt.Fprintln(p.w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

// errorf prints an error message.
func (p printer) errorf(format string, args ...any) {
	fmt.Fprintln(p.w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

// warning prints a warning message.
func (p printer) warning(format string, args ...any) {
	fmt.Fprintln(p.w, styleIconWarning.Render(iconWarning)+" "+styleWarning.Render(fmt.Sprintf(format, args...)))
}

// info prints an info/status message.
func (p printer) info(format string, args ...any) {
	fmt.Fprintln(p.w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// detail prints a detail line (indented).
func (p printer) detail(format string, args ...any) {
	fmt.Fprintln(p.w, "  "+styleDim.Render(fmt.Sprintf(format, args...)))
}

// file prints a file output line.
func (p printer) file(path string) {
	fmt.Fprintln(p.w, "  "+styleDim.Render(iconArrow)+" "+styleValue.Render(path))
}

// keyValue prints a labeled value.
func (p printer) keyValue(key, value string) {
	fmt.Fprintln(p.w, styleKey.Render(key)+" "+styleValue.Render(value))
}

// nextStep prints a suggested next command.
func (p printer) nextStep(description, cmd string) {
	fmt.Fprintln(p.w, styleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// newline prints an empty line.
func (p printer) newline() {
	fmt.Fprintln(p.w)
}

// =============================================================================
// Result Display
// =============================================================================

// stats prints composite statistics on a single line.
func (p printer) stats(res *pipeline.Result) {
	parts := []string{fmt.Sprintf("%dx%d", res.Width, res.Height)}

	switch {
	case res.PassThrough:
		parts = append(parts, styleComputed.Render(iconPassed))
	default:
		parts = append(parts, fmt.Sprintf("%s captured", styleNumber.Render(fmt.Sprint(res.Stats.Captured))))
		if res.Stats.Failed > 0 {
			parts = append(parts, styleWarning.Render(fmt.Sprintf("%d skipped", res.Stats.Failed)))
		}
		if res.OverlayApplied {
			parts = append(parts, "overlay")
		}
		if res.CacheInfo.Hit {
			parts = append(parts, styleCached.Render(iconCached))
		} else {
			parts = append(parts, styleComputed.Render(iconFresh))
		}
	}

	var line strings.Builder
	line.WriteString("  ")
	for i, part := range parts {
		if i > 0 {
			line.WriteString(styleDim.Render(" · "))
		}
		line.WriteString(styleDim.Render(part))
	}
	fmt.Fprintln(p.w, line.String())
}

// skipped lists the regions that were left as placeholders.
func (p printer) skipped(res *pipeline.Result) {
	for _, r := range res.Regions {
		if !r.Captured {
			p.detail("%s %s: %s", iconWarning, r.ID, r.Error)
		}
	}
	if res.OverlayError != "" {
		p.detail("%s overlay: %s", iconWarning, res.OverlayError)
	}
}
