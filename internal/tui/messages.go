package tui

import (
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

// ViewMode determines which screen to render
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewConfirm
	ViewError
	ViewHelp
)

// Action is a pipeline the user can start.
type Action string

const (
	ActionRefresh   Action = "refresh"
	ActionSync      Action = "sync"
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionUpdate    Action = "update"
)

// Pipeline Messages

// PipelineStartedMsg indicates the sequencer accepted a pipeline
type PipelineStartedMsg struct {
	Run    int
	Action Action
	Steps  int
}

// StartFailedMsg indicates the sequencer rejected a pipeline
type StartFailedMsg struct {
	Run   int
	Error error
}

// StepStartedMsg indicates a step's command was submitted
type StepStartedMsg struct {
	Run     int
	Index   int
	Step    string
	Request task.Request
}

// LineMsg carries one line of command output
type LineMsg struct {
	Run  int
	Text string
}

// LifecycleMsg carries a process lifecycle transition
type LifecycleMsg struct {
	Run        int
	Transition process.Transition
	Detail     string
}

// StepResolvedMsg indicates a step produced its terminal result
type StepResolvedMsg struct {
	Run     int
	Outcome sequencer.Outcome
}

// PipelineDoneMsg indicates the pipeline reached a terminal state
type PipelineDoneMsg struct {
	Run    int
	Report sequencer.Report
}

// CancelRequestedMsg reports whether a cancel request reached a running task
type CancelRequestedMsg struct {
	Accepted bool
}

// SnapshotSavedMsg indicates the lists were persisted
type SnapshotSavedMsg struct {
	Snapshot snapshot.Snapshot
	Error    error
}

// ErrorMsg indicates a general error occurred
type ErrorMsg struct {
	Title   string
	Message string
}

// ClearErrorMsg requests error dialog dismissal
type ClearErrorMsg struct{}
