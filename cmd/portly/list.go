package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
)

type listOptions struct {
	filter     string
	jsonOutput bool
}

func newListCmd(root *rootFlags) *cobra.Command {
	opts := &listOptions{}

	names := make([]string, len(snapshot.Lists))
	for i, list := range snapshot.Lists {
		names[i] = string(list)
	}

	cmd := &cobra.Command{
		Use:       fmt.Sprintf("list [%s]", strings.Join(names, "|")),
		Short:     "Print a cached package list",
		Long:      "Print a package list from the snapshot cache without running any tool. Run 'portly refresh' to update it.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := snapshot.Installed
			if len(args) == 1 {
				list = snapshot.List(args[0])
			}

			app, err := root.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return runList(cmd, app.LoadSnapshot(), list, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "Only show entries containing this text")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, snap snapshot.Snapshot, list snapshot.List, opts *listOptions) error {
	if !snap.Loaded(list) {
		return renderEmptyList(cmd, list)
	}

	items := parsers.Filter(snap.Items(list), opts.filter)
	if opts.jsonOutput {
		return renderListJSON(cmd, snap, list, items)
	}

	out := cmd.OutOrStdout()
	for _, item := range items {
		fmt.Fprintln(out, item)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d %s entries, refreshed %s\n",
		len(items), len(snap.Items(list)), list, formatRelativeTime(snap.RefreshedAt[list]))
	return nil
}

func renderEmptyList(cmd *cobra.Command, list snapshot.List) error {
	fmt.Fprintf(cmd.OutOrStdout(), "No cached %s list.\n", list)
	fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'portly refresh' to load the package lists.")
	return nil
}

type listJSONPayload struct {
	Version     string           `json:"version"`
	List        snapshot.List    `json:"list"`
	RefreshedAt time.Time        `json:"refreshed_at"`
	Count       int              `json:"count"`
	Items       []string         `json:"items"`
	Updates     []parsers.Update `json:"updates,omitempty"`
}

func renderListJSON(cmd *cobra.Command, snap snapshot.Snapshot, list snapshot.List, items []string) error {
	payload := listJSONPayload{
		Version:     "1.0",
		List:        list,
		RefreshedAt: snap.RefreshedAt[list],
		Count:       len(items),
		Items:       items,
	}
	if payload.Items == nil {
		payload.Items = []string{}
	}

	if list == snapshot.Updates {
		shown := make(map[string]bool, len(items))
		for _, item := range items {
			shown[item] = true
		}
		for _, record := range snap.Updates.Records {
			if shown[record.Display()] {
				payload.Updates = append(payload.Updates, record)
			}
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
