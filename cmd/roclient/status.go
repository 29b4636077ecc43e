package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// status prints user-facing progress lines, colored when writing to a
// terminal.
type status struct {
	w       io.Writer
	colored bool
}

func newStatus(f *os.File) *status {
	return &status{w: f, colored: term.IsTerminal(int(f.Fd()))}
}

func (s *status) print(c color.Color, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	if s.colored {
		msg = c.Render(msg)
	}
	fmt.Fprintln(s.w, msg)
}

func (s *status) success(format string, a ...interface{}) {
	s.print(color.Green, format, a...)
}

func (s *status) failure(format string, a ...interface{}) {
	s.print(color.Red, format, a...)
}

func (s *status) line(format string, a ...interface{}) {
	fmt.Fprintf(s.w, format+"\n", a...)
}
