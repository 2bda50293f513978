package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, map[string]string{
					"version":    a.info.version,
					"commit":     a.info.commit,
					"build_date": a.info.buildDate,
					"go":         runtime.Version(),
				})
			}
			_, err := fmt.Fprintf(out, "xcsettings %s (commit: %s, built: %s, %s)\n",
				a.info.version, a.info.commit, a.info.buildDate, runtime.Version())
			return err
		},
	}
}
