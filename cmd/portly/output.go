package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	redBox = color.New(color.FgRed, color.Bold)
)

type icons struct {
	ok, fail, warn, skip string
}

var (
	unicodeIcons = icons{ok: "✓", fail: "✗", warn: "!", skip: "-"}
	asciiIcons   = icons{ok: "[OK]", fail: "[XX]", warn: "[!!]", skip: "[--]"}
)

func iconsFor(writer io.Writer) icons {
	if supportsUnicode(writer) {
		return unicodeIcons
	}
	return asciiIcons
}

func supportsUnicode(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

// consoleOutput prints a pipeline run. It is both the process sink and the
// step observer, so writes are serialised.
type consoleOutput struct {
	mu    sync.Mutex
	out   io.Writer
	icons icons
}

func newConsoleOutput(out io.Writer) *consoleOutput {
	return &consoleOutput{out: out, icons: iconsFor(out)}
}

func (c *consoleOutput) Line(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, parsers.StripANSI(text))
}

func (c *consoleOutput) Lifecycle(transition process.Transition, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch transition {
	case process.Started:
		if _, argv, ok := strings.Cut(detail, ": "); ok {
			cyan.Fprintf(c.out, "Executing: %s\n", argv)
		}
	case process.TerminateRequested:
		yellow.Fprintf(c.out, "Stopping: %s\n", detail)
	case process.TerminateForced:
		yellow.Fprintf(c.out, "Killed: %s\n", detail)
	case process.TimedOut:
		yellow.Fprintf(c.out, "Timed out: %s\n", detail)
	}
}

// StepStarted is not printed: the process announces itself through Lifecycle,
// which is guaranteed to precede its lines.
func (c *consoleOutput) StepStarted(int, string, task.Request) {}

func (c *consoleOutput) StepResolved(outcome sequencer.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := outcome.Elapsed.Round(time.Millisecond)
	result := outcome.Result
	switch result.Kind {
	case task.KindSuccess:
		green.Fprintf(c.out, "%s %s: %s (%s)\n", c.icons.ok, outcome.Step, describePayload(result.Payload), elapsed)
	case task.KindCancelled:
		yellow.Fprintf(c.out, "%s %s: cancelled\n", c.icons.skip, outcome.Step)
	case task.KindFailure:
		c.failure(outcome.Step, result.Failure)
	}
}

func (c *consoleOutput) Finished(sequencer.Report) {}

// failure writes attention failures as a red block and ordinary ones as the
// full diagnostic followed by a one-line summary.
func (c *consoleOutput) failure(step string, f *task.Failure) {
	if f.Attention || f.Fatal() {
		redBox.Fprintf(c.out, "%s %s needs attention\n", c.icons.fail, step)
		for _, line := range strings.Split(strings.TrimRight(f.Diagnostic, "\n"), "\n") {
			red.Fprintf(c.out, "    %s\n", line)
		}
		return
	}
	if diagnostic := strings.TrimRight(f.Diagnostic, "\n"); diagnostic != "" {
		fmt.Fprintln(c.out, diagnostic)
	}
	red.Fprintf(c.out, "%s %s failed: %s\n", c.icons.fail, step, f.Headline())
}

func (c *consoleOutput) summary(report sequencer.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := len(report.Failed())
	switch {
	case report.State == sequencer.Aborted && report.Reason == "cancelled":
		yellow.Fprintf(c.out, "%s %s cancelled\n", c.icons.skip, report.Pipeline)
	case report.State == sequencer.Aborted:
		red.Fprintf(c.out, "%s %s aborted: %s\n", c.icons.fail, report.Pipeline, report.Reason)
	case failed > 0:
		yellow.Fprintf(c.out, "%s %s finished with %d failed step(s)\n", c.icons.warn, report.Pipeline, failed)
	default:
		green.Fprintf(c.out, "%s %s complete\n", c.icons.ok, report.Pipeline)
	}
}

func (c *consoleOutput) note(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func describePayload(payload any) string {
	switch v := payload.(type) {
	case []string:
		return fmt.Sprintf("%d packages", len(v))
	case parsers.Updates:
		return fmt.Sprintf("%d updates", v.Len())
	default:
		return "done"
	}
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}

	delta := time.Since(ts)
	if delta < time.Minute {
		return "just now"
	}
	if delta < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(delta.Minutes()))
	}
	if delta < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(delta.Hours()))
	}

	return fmt.Sprintf("%d days ago", int(delta.Hours()/24))
}
