package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/romariotrain/media-pipeline/internal/client/gate"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	barWidth   = 30
)

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter redraws a single line on terminals and prints one line
// per change elsewhere.
type progressPrinter struct {
	out  io.Writer
	tty  bool
	last string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: isTerminal(out)}
}

func (p *progressPrinter) Print(label string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := barWidth * pct / 100
	line := fmt.Sprintf("%-12s [%s%s] %3d%%", label, strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), pct)
	if line == p.last {
		return
	}
	p.last = line
	if p.tty {
		fmt.Fprintf(p.out, "\r%s", line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// Done ends the redrawn line.
func (p *progressPrinter) Done() {
	if p.tty && p.last != "" {
		fmt.Fprintln(p.out)
	}
	p.last = ""
}

func phaseLabel(phase gate.Phase, colorize bool) string {
	label := strings.ToUpper(string(phase))
	if !colorize {
		return label
	}
	switch phase {
	case gate.PhaseReady:
		return ansiGreen + label + ansiReset
	case gate.PhaseFailed, gate.PhaseGone:
		return ansiRed + label + ansiReset
	case gate.PhaseInFlight:
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}
