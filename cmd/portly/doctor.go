package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/portly/internal/doctor"
)

type doctorOptions struct {
	reposDir string
}

func newDoctorCmd(root *rootFlags) *cobra.Command {
	opts := &doctorOptions{}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the Portage tools and the elevation helper are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			checkOpts := app.DoctorOptions()
			checkOpts.ReposDir = opts.reposDir
			return runDoctor(cmd, doctor.Checks(checkOpts))
		},
	}

	cmd.Flags().StringVar(&opts.reposDir, "repos-dir", doctor.DefaultReposDir, "Location of the Gentoo repository")

	return cmd
}

func runDoctor(cmd *cobra.Command, checks []doctor.Check) error {
	results, err := doctor.Run(cmd.Context(), checks)

	out := cmd.OutOrStdout()
	ic := iconsFor(out)
	for _, r := range results {
		switch {
		case r.Passed:
			green.Fprintf(out, "%s %s\n", ic.ok, r.Check.Name)
		case r.Check.Severity == doctor.Required:
			red.Fprintf(out, "%s %s: %s\n", ic.fail, r.Check.Name, r.Message)
			fmt.Fprintf(out, "    %s\n", r.Check.Hint)
		default:
			yellow.Fprintf(out, "%s %s: %s\n", ic.warn, r.Check.Name, r.Message)
			fmt.Fprintf(out, "    %s\n", r.Check.Hint)
		}
	}

	return err
}
