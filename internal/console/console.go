// Package console prints user-visible session lines.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	colorWarn  = lipgloss.Color("#FFE66D")
	colorAlert = lipgloss.Color("#FF6B6B")
	colorMuted = lipgloss.Color("#6c757d")

	styleWarn  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
	styleInfo  = lipgloss.NewStyle().Foreground(colorMuted)
)

// Console writes warning and error lines, styled when the writer is a TTY.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool
}

// New returns a Console writing to out. Styling is enabled only when out is
// a terminal.
func New(out io.Writer) *Console {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, styled: styled}
}

// Warn prints a warning line.
func (c *Console) Warn(text string) {
	c.writeLine(styleWarn, text)
}

// Error prints an error line.
func (c *Console) Error(text string) {
	c.writeLine(styleError, text)
}

// Infof prints an informational line.
func (c *Console) Infof(format string, args ...any) {
	c.writeLine(styleInfo, fmt.Sprintf(format, args...))
}

func (c *Console) writeLine(style lipgloss.Style, text string) {
	if c.styled {
		text = style.Render(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, text+"\n")
}
