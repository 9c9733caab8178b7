// Package display renders the status light, run progress and summaries to a
// terminal, and asks the operator for confirmation.
package display

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/xkilldash9x/autosubmit/internal/controller"
	"github.com/xkilldash9x/autosubmit/internal/mode"
	"github.com/xkilldash9x/autosubmit/internal/monitor"
	"github.com/xkilldash9x/autosubmit/internal/orchestrator"
)

var (
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00E676")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA726")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

const light = "●"

// Console writes human readable status lines. It is safe for concurrent use.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

var (
	_ monitor.Sink        = (*Console)(nil)
	_ controller.Reporter = (*Console)(nil)
)

// NewConsole returns a Console that colours output only when out is a terminal.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, colorize: ShouldColorize(out)}
}

// ShouldColorize reports whether w is an interactive terminal.
func ShouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (c *Console) style(s lipgloss.Style, text string) string {
	if !c.colorize {
		return text
	}
	return s.Render(text)
}

// Write serializes other output with the console's own lines.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// StatusLine renders the status light for a detected mode.
func (c *Console) StatusLine(m mode.Mode) string {
	switch m {
	case mode.DraftSubmit:
		return c.style(readyStyle, light) + " Ready: draft queue (submit)"
	case mode.FailedReprocess:
		return c.style(readyStyle, light) + " Ready: failed queue (clone and resubmit)"
	default:
		return c.style(idleStyle, light) + " Not ready: open the Draft or Failed tab"
	}
}

// Status implements monitor.Sink.
func (c *Console) Status(s monitor.Status) {
	c.println(c.StatusLine(s.Mode))
}

// Progress implements controller.Reporter.
func (c *Console) Progress(p controller.Progress) {
	c.println(c.ProgressLine(p))
}

// ProgressLine renders one progress update.
func (c *Console) ProgressLine(p controller.Progress) string {
	head := c.style(runningStyle, light) + fmt.Sprintf(" [%d/%d] %s", p.Index, p.Total, p.State)
	if p.Signature != "" {
		head += " " + c.style(detailStyle, truncate(p.Signature, 48))
	}
	return head + c.style(detailStyle, fmt.Sprintf("  done=%d skipped=%d failed=%d", p.Done, p.Skipped, p.Failed))
}

// Finished implements controller.Reporter.
func (c *Console) Finished(r controller.Report) {
	c.println(c.SummaryLine(r))
}

// SummaryLine renders the end-of-run report.
func (c *Console) SummaryLine(r controller.Report) string {
	s := r.Summary
	st := readyStyle
	switch s.Stop {
	case orchestrator.StopCancelled:
		st = runningStyle
	case orchestrator.StopFatal, orchestrator.StopFailed:
		st = idleStyle
	}
	line := fmt.Sprintf("%s %s: %d/%d done", c.style(st, light), s.Stop, s.Done, s.Requested)
	if s.Presumed > 0 {
		line += fmt.Sprintf(" (%d presumed)", s.Presumed)
	}
	line += fmt.Sprintf(", %d skipped, %d failed in %s", s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
	if s.Err != nil {
		line += "\n  " + c.style(detailStyle, s.Err.Error())
	}
	return line
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Prompt asks the operator on in/out before a run that requests more items
// than the queue shows.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

var _ controller.Confirmer = (*Prompt)(nil)

// NewPrompt creates a Prompt.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// Confirm implements controller.Confirmer. Anything but y/yes declines.
func (p *Prompt) Confirm(ctx context.Context, requested, available int) (bool, error) {
	fmt.Fprintf(p.out, "Requested %d items but only %d are visible. Continue anyway? [y/N] ", requested, available)

	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errc:
		if err == io.EOF {
			return false, nil
		}
		return false, err
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
