package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

const bridgeBuffer = 256

// bridge forwards engine callbacks, which arrive on worker goroutines, into
// the Bubbletea loop through a channel. A full channel blocks the worker
// until the model reads it or is closed.
type bridge struct {
	run  int
	ch   chan tea.Msg
	done <-chan struct{}
}

func (b bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

func (b bridge) Line(text string) {
	b.send(LineMsg{Run: b.run, Text: text})
}

func (b bridge) Lifecycle(transition process.Transition, detail string) {
	b.send(LifecycleMsg{Run: b.run, Transition: transition, Detail: detail})
}

func (b bridge) StepStarted(index int, step string, req task.Request) {
	b.send(StepStartedMsg{Run: b.run, Index: index, Step: step, Request: req})
}

func (b bridge) StepResolved(outcome sequencer.Outcome) {
	b.send(StepResolvedMsg{Run: b.run, Outcome: outcome})
}

// Finished is reported through the report channel instead.
func (b bridge) Finished(sequencer.Report) {}

// startPipelineCmd starts pipeline and forwards its report into ch. Sends
// give up once done is closed.
func startPipelineCmd(runner Runner, run int, action Action, pipeline sequencer.Pipeline, initial snapshot.Snapshot, ch chan tea.Msg, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		b := bridge{run: run, ch: ch, done: done}
		reports, err := runner.Start(context.Background(), pipeline, initial, b, b)
		if err != nil {
			return StartFailedMsg{Run: run, Error: err}
		}
		go func() {
			report, ok := <-reports
			if ok {
				b.send(PipelineDoneMsg{Run: run, Report: report})
			}
		}()
		return PipelineStartedMsg{Run: run, Action: action, Steps: len(pipeline.Steps)}
	}
}

// listenCmd waits for the next engine message. It yields nil once done is closed.
func listenCmd(ch chan tea.Msg, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-done:
			return nil
		}
	}
}

// cancelCmd asks the runner to stop the current pipeline.
func cancelCmd(runner Runner) tea.Cmd {
	return func() tea.Msg {
		return CancelRequestedMsg{Accepted: runner.Cancel()}
	}
}

// saveSnapshotCmd persists snap to store.
func saveSnapshotCmd(store *snapshot.Store, snap snapshot.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return SnapshotSavedMsg{Snapshot: snap, Error: store.Save(snap)}
	}
}
