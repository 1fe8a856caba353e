package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	verbose    bool
	noRefresh  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "portly",
		Short: "portly browses and manages Portage packages",
		Long: `portly lists installed, available and upgradable Portage packages and runs
emerge actions with elevated privileges. Without a subcommand it opens the
interactive package manager when attached to a terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isInteractive(cmd) {
				return cmd.Help()
			}
			return runTUI(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (default: user config dir/portly/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVar(&flags.noRefresh, "no-refresh", false, "Show the cached lists without refreshing on start")

	cmd.AddCommand(newRefreshCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newInstallCmd(flags))
	cmd.AddCommand(newUninstallCmd(flags))
	cmd.AddCommand(newUpdateCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newDoctorCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// app builds the services for a plain command; logs go to its stderr.
func (f *rootFlags) app(cmd *cobra.Command) (*AppContext, error) {
	return newAppContext(appOptions{
		ConfigPath: f.configPath,
		Verbose:    f.verbose,
		Stderr:     cmd.ErrOrStderr(),
	})
}

func isInteractive(cmd *cobra.Command) bool {
	return supportsUnicode(cmd.InOrStdin()) && supportsUnicode(cmd.OutOrStdout())
}
