package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Styles for status-coloured rows
var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Gray   = color.New(color.FgHiBlack)
	Red    = color.New(color.FgRed)
)

// WriteSuccess writes a check-marked success line
func WriteSuccess(w io.Writer, noColor bool, format string, args ...any) {
	writeLine(w, noColor, color.New(color.FgGreen, color.Bold), "✓", format, args...)
}

// WriteWarning writes a warning line
func WriteWarning(w io.Writer, noColor bool, format string, args ...any) {
	writeLine(w, noColor, color.New(color.FgYellow, color.Bold), "!", format, args...)
}

// WriteError writes an error line followed by an optional hint
func WriteError(w io.Writer, noColor bool, err error, hint string) {
	writeLine(w, noColor, color.New(color.FgRed, color.Bold), "✗", "%v", err)
	if hint != "" {
		cyan := color.New(color.FgCyan)
		if noColor {
			cyan.DisableColor()
		}
		cyan.Fprintf(w, "  → %s\n", hint)
	}
}

func writeLine(w io.Writer, noColor bool, c *color.Color, symbol, format string, args ...any) {
	if noColor {
		c.DisableColor()
	}
	c.Fprintf(w, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}
