package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/portly/internal/doctor"
	"github.com/alexisbeaulieu97/portly/internal/tui"
)

func runTUI(cmd *cobra.Command, flags *rootFlags) error {
	app, err := newAppContext(appOptions{
		ConfigPath: flags.configPath,
		Verbose:    flags.verbose,
		Quiet:      true,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	results, _ := doctor.Run(ctx, doctor.Checks(app.DoctorOptions()))

	model := tui.NewModel(tui.Options{
		Runner:         app.Sequencer,
		Builder:        app.Builder,
		Store:          app.Store,
		Snapshot:       app.LoadSnapshot(),
		Warnings:       startupWarnings(results),
		RefreshOnStart: !flags.noRefresh,
		Logger:         app.Logger.With("component", "tui"),
	})

	app.Logger.Info("launching package manager")
	defer model.Close()
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		app.Logger.Error(err, "package manager exited with error")
		return err
	}

	// A pipeline cancelled by quitting may still be unwinding.
	app.Sequencer.Cancel()
	return nil
}

// startupWarnings turns failed host checks into banner lines.
func startupWarnings(results []doctor.Result) []string {
	failed := doctor.Failed(results)
	warnings := make([]string, 0, len(failed))
	for _, r := range failed {
		warnings = append(warnings, fmt.Sprintf("%s (%s)", r.Message, r.Check.Hint))
	}
	return warnings
}
