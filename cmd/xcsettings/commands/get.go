package commands

import (
	"github.com/spf13/cobra"
)

func newGetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print one build setting for each target",
		Long: `Print the value of one build setting for each target.

A target that does not define the setting reports a missing build setting
error; the other targets are still printed and the command fails afterwards.`,
		Example: `  xcsettings get PRODUCT_BUNDLE_IDENTIFIER --scheme App --target App`,
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := a.loadTargets(cmd.Context())
			if err != nil {
				return err
			}

			values := make([]targetValue, 0, len(all))
			for _, b := range all {
				value, err := b.Lookup(args[0])
				values = append(values, newTargetValue(b.Target, value, err))
			}
			return a.writeTargetValues(cmd.OutOrStdout(), values)
		},
	}

	a.addProjectFlags(cmd)
	return cmd
}
