package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/script"
)

func newEvalCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "eval [PROGRAM]",
		Short: "Run a Starlark program against each target",
		Long: `Run a Starlark program once per target with its settings predeclared.

Predeclared names: settings, target, action, scheme, lookup(key, default),
has(key), query(name) and struct. Globals the program defines, except
functions and names starting with an underscore, are printed per target.`,
		Example: `  xcsettings eval 'static = query("framework-type") == "static"' --scheme Kit

  xcsettings eval -f checks.star --scheme App --json`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename, program, err := readProgram(file, args)
			if err != nil {
				return configError(err)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}

			all, err := a.loadTargets(cmd.Context())
			if err != nil {
				return err
			}

			evaluator := script.NewEvaluator(cfg.Script.Timeout, a.logger("script"))
			results, evalErr := evaluator.EvaluateAll(cmd.Context(), filename, program, all)

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else if err := writeResults(out, results); err != nil {
				return err
			}
			return evalErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the program from a file")
	a.addProjectFlags(cmd)
	return cmd
}

func readProgram(file string, args []string) (filename, program string, err error) {
	switch {
	case file != "" && len(args) > 0:
		return "", "", errors.New("pass a program or --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", "", fmt.Errorf("failed to read program: %w", err)
		}
		return file, string(data), nil
	case len(args) == 1:
		return "<command line>", args[0], nil
	default:
		return "", "", errors.New("no program given")
	}
}

func writeResults(w io.Writer, results []*script.Result) error {
	for _, result := range results {
		if _, err := fmt.Fprintf(w, "%s:\n", result.Target); err != nil {
			return err
		}
		for _, line := range result.Printed {
			fmt.Fprintf(w, "  # %s\n", line)
		}
		if result.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", result.Error)
			continue
		}

		names := make([]string, 0, len(result.Output))
		for name := range result.Output {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			encoded, err := json.Marshal(result.Output[name])
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", name, err)
			}
			fmt.Fprintf(w, "  %s = %s\n", name, encoded)
		}
	}
	return nil
}
