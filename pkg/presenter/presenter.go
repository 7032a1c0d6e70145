// Package presenter formats traffical CLI output: status lines, section
// headers, change tables and unified diffs.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
)

// Presenter is the output surface used by CLI commands.
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Table(headers []string, rows [][]string)
	Diff(diff string)
	SetQuiet(quiet bool)
}

// ColorMode selects when ANSI colors are emitted.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// TerminalPresenter writes to a pair of streams. Errors always reach the
// error stream; everything else is suppressed in quiet mode.
type TerminalPresenter struct {
	out, errOut io.Writer
	quiet       bool

	failure, success, warning *color.Color
	heading, added, removed   *color.Color
	hunk                      *color.Color
}

// New writes to stdout and stderr, coloring according to the environment.
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions builds a presenter over explicit streams.
func NewWithOptions(out, errOut io.Writer, mode ColorMode) *TerminalPresenter {
	switch mode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}

	return &TerminalPresenter{
		out:     out,
		errOut:  errOut,
		failure: color.New(color.FgRed, color.Bold),
		success: color.New(color.FgGreen, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		heading: color.New(color.Bold),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		hunk:    color.New(color.FgCyan),
	}
}

// detectColorMode honours NO_COLOR, then TRAFFICAL_COLOR.
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch strings.ToLower(os.Getenv("TRAFFICAL_COLOR")) {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	}
	return ColorAuto
}

func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	msg := err.Error()
	if context != "" {
		msg = context + ": " + msg
	}
	p.failure.Fprintf(p.errOut, "[ERROR] %s\n", msg)
}

func (p *TerminalPresenter) Success(message string) {
	p.line(p.success, "✓ "+message)
}

func (p *TerminalPresenter) Warning(message string) {
	p.line(p.warning, "⚠ "+message)
}

func (p *TerminalPresenter) Info(message string) {
	p.line(nil, message)
}

// Section prints title underlined with dashes.
func (p *TerminalPresenter) Section(title string) {
	p.line(p.heading, title)
	p.line(p.heading, strings.Repeat("-", len(title)))
}

// Table renders rows with a rule under the header and no other borders.
func (p *TerminalPresenter) Table(headers []string, rows [][]string) {
	if p.quiet || len(rows) == 0 {
		return
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	head := cell
	if !color.NoColor {
		head = cell.Bold(true)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderTop(false).BorderBottom(false).
		BorderLeft(false).BorderRight(false).
		BorderColumn(false).BorderHeader(true).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return head
			}
			return cell
		})

	fmt.Fprintln(p.out, t.Render())
}

// Diff prints a unified diff with added and removed lines colored.
func (p *TerminalPresenter) Diff(diff string) {
	if diff == "" {
		return
	}
	for _, l := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		p.line(p.diffColor(l), l)
	}
}

func (p *TerminalPresenter) diffColor(l string) *color.Color {
	switch {
	case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
		return p.heading
	case strings.HasPrefix(l, "@@"):
		return p.hunk
	case strings.HasPrefix(l, "+"):
		return p.added
	case strings.HasPrefix(l, "-"):
		return p.removed
	}
	return nil
}

func (p *TerminalPresenter) SetQuiet(quiet bool) { p.quiet = quiet }

func (p *TerminalPresenter) line(c *color.Color, s string) {
	if p.quiet {
		return
	}
	if c == nil {
		fmt.Fprintln(p.out, s)
		return
	}
	c.Fprintln(p.out, s)
}

var std Presenter = New()

// SetDefault swaps the package-level presenter and returns the previous one.
func SetDefault(p Presenter) Presenter {
	prev := std
	std = p
	return prev
}

func Error(err error, context string) { std.Error(err, context) }
func Success(message string) { std.Success(message) }
func Warning(message string) { std.Warning(message) }
func Info(message string) { std.Info(message) }
func Section(title string) { std.Section(title) }
func Table(headers []string, rows [][]string) { std.Table(headers, rows) }
func Diff(diff string) { std.Diff(diff) }
func SetQuiet(quiet bool) { std.SetQuiet(quiet) }
