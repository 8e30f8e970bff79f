// Package detector inspects the terminal to choose how output is coloured.
package detector

import (
	"os"

	"github.com/muesli/termenv"
	"go.trai.ch/knot/internal/ui/output"
	"golang.org/x/term"
)

// Environment describes where output is written.
type Environment struct {
	TTY     bool
	CI      bool
	NoColor bool
}

// Detect inspects f and the process environment.
func Detect(f *os.File) Environment {
	ci := os.Getenv("CI")
	return Environment{
		TTY:     term.IsTerminal(int(f.Fd())),
		CI:      ci == "true" || ci == "1",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// Profile returns the colour profile for the environment. CI logs get basic
// ANSI colours, other non-terminals get none.
func (e Environment) Profile() termenv.Profile {
	switch {
	case e.NoColor:
		return termenv.Ascii
	case e.CI:
		return output.ColorProfileANSI()
	case !e.TTY:
		return termenv.Ascii
	default:
		return output.ColorProfile()
	}
}
