package output

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// palette holds the colors of the console output.
type palette struct {
	title   *color.Color
	rule    *color.Color
	label   *color.Color
	value   *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	dim     *color.Color
	latency *color.Color
	phase   *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		title:   color.New(color.Bold),
		rule:    color.New(color.FgCyan),
		label:   color.New(color.Bold),
		value:   color.New(color.FgCyan),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.Faint),
		latency: color.New(color.FgBlue),
		phase:   color.New(color.FgMagenta),
	}

	for _, c := range []*color.Color{p.title, p.rule, p.label, p.value, p.good, p.warn, p.bad, p.dim, p.latency, p.phase} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// rateColor picks green, yellow or red for a success fraction.
func (p *palette) rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.99:
		return p.good
	case rate >= 0.95:
		return p.warn
	default:
		return p.bad
	}
}

// mark returns a colored check mark or cross.
func (p *palette) mark(ok bool) string {
	if ok {
		return p.good.Sprint("✓")
	}
	return p.bad.Sprint("✗")
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks the environment for color preferences.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}
