package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StepState is the display state of one pipeline step.
type StepState int

const (
	StepPending StepState = iota
	StepRunning
	StepDone
	StepFailed
	StepCancelled
)

// StepEntry represents a single step for rendering.
type StepEntry struct {
	Name  string
	State StepState
}

// StepList renders the steps of a pipeline with their current state. It is
// a value; With returns an updated copy.
type StepList struct {
	entries []StepEntry
}

var (
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

// NewStepList constructs a step list with every step pending.
func NewStepList(names []string) StepList {
	entries := make([]StepEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, StepEntry{Name: name})
	}
	return StepList{entries: entries}
}

// Entries returns the ordered step entries.
func (s StepList) Entries() []StepEntry {
	clone := make([]StepEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}

// Len returns the number of steps.
func (s StepList) Len() int {
	return len(s.entries)
}

// With returns a copy of s with step index set to state. Out of range
// indexes are ignored.
func (s StepList) With(index int, state StepState) StepList {
	if index < 0 || index >= len(s.entries) {
		return s
	}
	out := StepList{entries: s.Entries()}
	out.entries[index].State = state
	return out
}

// View renders the steps on one line, for example "✓ install ● installed · available".
func (s StepList) View() string {
	parts := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		switch entry.State {
		case StepRunning:
			parts = append(parts, runningStyle.Render("● "+entry.Name))
		case StepDone:
			parts = append(parts, doneStyle.Render("✓ "+entry.Name))
		case StepFailed:
			parts = append(parts, failedStyle.Render("✗ "+entry.Name))
		case StepCancelled:
			parts = append(parts, cancelledStyle.Render("- "+entry.Name))
		default:
			parts = append(parts, pendingStyle.Render("· "+entry.Name))
		}
	}
	return strings.Join(parts, " ")
}
