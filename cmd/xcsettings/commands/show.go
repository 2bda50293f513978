package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

func newShowCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show every build setting of each target",
		Example: `  # All targets of the workspace in the working directory
  xcsettings show --scheme App

  # One target, as JSON
  xcsettings show -p Kit.xcodeproj --target Kit --json`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := a.loadTargets(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				docs := make([]settingsJSON, 0, len(all))
				for _, b := range all {
					docs = append(docs, toSettingsJSON(b))
				}
				return writeJSON(out, docs)
			}

			for i, b := range all {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if b.Action == xcodebuild.ActionNone {
					fmt.Fprintf(out, "Build settings for target %s:\n", b.Target)
				} else {
					fmt.Fprintf(out, "Build settings for action %s and target %s:\n", b.Action, b.Target)
				}
				for _, key := range b.Keys() {
					value, _ := b.Lookup(key)
					fmt.Fprintf(out, "    %s = %s\n", key, value)
				}
			}
			return nil
		},
	}

	a.addProjectFlags(cmd)
	return cmd
}
