package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
)

func newQueryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query NAME [DIR]",
		Short: "Answer a derived question about each target",
		Long: fmt.Sprintf(`Answer a derived question about each target's settings.

Queries: %s, destination DIR

"destination DIR" prints where the product lands when copied into DIR:
DIR/Static for static frameworks, DIR itself otherwise.

A target whose settings cannot answer the query reports its error; the
other targets are still printed and the command fails afterwards.`,
			strings.Join(buildsettings.QueryNames(), ", ")),
		Example: `  # SDKs the scheme builds for
  xcsettings query sdks --scheme App

  # Where archived products end up
  xcsettings query built-products-dir --scheme App --action archive`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveDefault
			}
			return append(buildsettings.QueryNames(), "destination"), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			switch {
			case name == "destination" && len(args) != 2:
				return configError(fmt.Errorf("destination needs a directory"))
			case name != "destination" && len(args) != 1:
				return configError(fmt.Errorf("query %s takes no argument", name))
			case name != "destination" && !slices.Contains(buildsettings.QueryNames(), name):
				return configError(fmt.Errorf("unknown query %q", name))
			}

			all, err := a.loadTargets(cmd.Context())
			if err != nil {
				return err
			}

			values := make([]targetValue, 0, len(all))
			for _, b := range all {
				if name == "destination" {
					values = append(values, targetValue{Target: b.Target, Value: b.ProductDestinationPath(args[1])})
					continue
				}
				value, err := b.Query(name)
				values = append(values, newTargetValue(b.Target, value, err))
			}
			return a.writeTargetValues(cmd.OutOrStdout(), values)
		},
	}

	a.addProjectFlags(cmd)
	return cmd
}
