package main

import (
	"github.com/spf13/cobra"
)

func newRefreshCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload the installed, available and update lists",
		Long: `Reload the package lists with equery, eix and emerge and store them in the
snapshot cache. A failing list keeps its previously cached contents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = runPipeline(cmd, app, root.verbose, app.Builder.Refresh())
			return err
		},
	}

	return cmd
}
