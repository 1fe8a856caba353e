package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/portage"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
)

type actionOptions struct {
	yes bool
}

// buildFunc turns the command arguments into an elevated pipeline.
type buildFunc func(b *portage.Builder, atoms []string) (sequencer.Pipeline, error)

func newSyncCmd(root *rootFlags) *cobra.Command {
	return newActionCmd(root, &cobra.Command{
		Use:   "sync",
		Short: "Sync the Portage repositories, then reload the update list",
		Args:  cobra.NoArgs,
	}, false, func(b *portage.Builder, _ []string) (sequencer.Pipeline, error) {
		return b.Sync(), nil
	})
}

func newInstallCmd(root *rootFlags) *cobra.Command {
	return newActionCmd(root, &cobra.Command{
		Use:   "install <category/name>...",
		Short: "Install packages, then reload every list",
		Args:  cobra.MinimumNArgs(1),
	}, true, func(b *portage.Builder, atoms []string) (sequencer.Pipeline, error) {
		return b.Install(atoms)
	})
}

func newUninstallCmd(root *rootFlags) *cobra.Command {
	return newActionCmd(root, &cobra.Command{
		Use:     "uninstall <category/name>...",
		Aliases: []string{"remove"},
		Short:   "Unmerge packages, then reload every list",
		Args:    cobra.MinimumNArgs(1),
	}, true, func(b *portage.Builder, atoms []string) (sequencer.Pipeline, error) {
		return b.Uninstall(atoms)
	})
}

func newUpdateCmd(root *rootFlags) *cobra.Command {
	return newActionCmd(root, &cobra.Command{
		Use:   "update [category/name]...",
		Short: "Update packages, or @world when none are given, then reload every list",
		Args:  cobra.ArbitraryArgs,
	}, false, func(b *portage.Builder, atoms []string) (sequencer.Pipeline, error) {
		return b.Update(atoms), nil
	})
}

// newActionCmd completes cmd as an elevated action. When atomsRequired is
// set the arguments must contain at least one package atom.
func newActionCmd(root *rootFlags, cmd *cobra.Command, atomsRequired bool, build buildFunc) *cobra.Command {
	opts := &actionOptions{}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		atoms, err := selectAtoms(cmd, args, atomsRequired)
		if err != nil {
			return err
		}

		app, err := root.app(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		pipeline, err := build(app.Builder, atoms)
		if err != nil {
			return err
		}
		return runAction(cmd, app, root.verbose, opts, pipeline)
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Run without asking for confirmation")

	return cmd
}

func runAction(cmd *cobra.Command, app *AppContext, verbose bool, opts *actionOptions, pipeline sequencer.Pipeline) error {
	if !opts.yes {
		command, ok := portage.ActionCommand(pipeline)
		if !ok {
			return fmt.Errorf("%s has no action step", pipeline.Name)
		}
		argv := app.Runner.Argv(process.Spec{Command: command, Elevate: true})

		confirmed, err := confirm(cmd, fmt.Sprintf("Run %s with elevated privileges?", argv))
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	_, err := runPipeline(cmd, app, verbose, pipeline)
	return err
}

// selectAtoms extracts package atoms from the arguments, warning about the
// ones that are not category/name.
func selectAtoms(cmd *cobra.Command, args []string, required bool) ([]string, error) {
	if len(args) == 0 && !required {
		return nil, nil
	}
	atoms, skipped := parsers.SelectAtoms(args)
	for _, item := range skipped {
		yellow.Fprintf(cmd.ErrOrStderr(), "skipping %q: not a category/name atom\n", item)
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("no valid package atoms in %q: %w", strings.Join(args, " "), portage.ErrNoAtoms)
	}
	return atoms, nil
}

// confirm asks a yes/no question on the command's input. Anything but an
// explicit yes, including end of input, declines.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)

	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout())
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
