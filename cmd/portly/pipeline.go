package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/portly/internal/events"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// runPipeline runs pipeline in the foreground, streaming its output to the
// command's stdout. An interrupt cancels the run. The resulting lists are
// saved to the snapshot cache even when the run fails part way.
func runPipeline(cmd *cobra.Command, app *AppContext, verbose bool, pipeline sequencer.Pipeline) (sequencer.Report, error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := newConsoleOutput(cmd.OutOrStdout())
	if verbose {
		sub, err := app.Publisher.Subscribe(events.SequenceStarted, func(_ context.Context, event events.Event) error {
			if payload, ok := event.Payload().(map[string]any); ok {
				out.note("Run %v: %v (%v steps)", payload["run_id"], payload["pipeline"], payload["steps"])
			}
			return nil
		})
		if err == nil {
			defer sub.Unsubscribe()
		}
	}

	reports, err := app.Sequencer.Start(ctx, pipeline, app.LoadSnapshot(), out, out)
	if err != nil {
		return sequencer.Report{}, fmt.Errorf("failed to start %s: %w", pipeline.Name, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			app.Sequencer.Cancel()
		case <-done:
		}
	}()

	report := <-reports
	if err := app.SaveSnapshot(snapshot.From(report.Token)); err != nil {
		app.Logger.Warn("snapshot not saved", "error", err)
		out.note("warning: %v", err)
	}
	out.summary(report)
	return report, reportError(report)
}

func reportError(report sequencer.Report) error {
	switch {
	case report.State == sequencer.Aborted && report.Reason == "cancelled":
		return fmt.Errorf("%s: %w", report.Pipeline, pkgerrors.ErrCancelled)
	case report.State == sequencer.Aborted:
		return fmt.Errorf("%s aborted: %s", report.Pipeline, report.Reason)
	case len(report.Failed()) > 0:
		return fmt.Errorf("%s finished with %d failed step(s)", report.Pipeline, len(report.Failed()))
	default:
		return nil
	}
}
