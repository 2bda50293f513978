package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/policy"
)

func newCheckCommand(a *app) *cobra.Command {
	var (
		policyPaths []string
		failOn      string
		noBuiltins  bool
		disabled    []string
		list        bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check build settings against Rego policies",
		Long: `Evaluate Rego policies against each target's build settings.

Policies come from the built-in set, the policy.dirs of the config file and
--policy. The command fails when a violation reaches the fail-on severity.`,
		Example: `  # Built-in policies for every target of a scheme
  xcsettings check --scheme App

  # Project policies, failing on warnings too
  xcsettings check --scheme App --policy ./policies --fail-on warning

  # List the policies that would run
  xcsettings check --list`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			threshold := cfg.Policy.FailOn
			if failOn != "" {
				threshold = failOn
			}
			severity, err := policy.ParseSeverity(threshold)
			if err != nil {
				return configError(err)
			}

			tel, err := a.telemetry()
			if err != nil {
				return err
			}

			opts := []policy.Option{policy.WithFailOn(severity), policy.WithMetrics(tel.Metrics)}
			if noBuiltins || !cfg.Policy.Builtins {
				opts = append(opts, policy.WithoutBuiltins())
			}
			eng, err := policy.NewEngine(a.logger("policy"), opts...)
			if err != nil {
				return err
			}

			paths := append(append([]string(nil), cfg.Policy.Dirs...), policyPaths...)
			if len(paths) > 0 {
				if _, err := eng.LoadPolicies(cmd.Context(), paths); err != nil {
					return configError(err)
				}
			}
			for _, name := range disabled {
				if err := eng.DisablePolicy(name); err != nil {
					return configError(err)
				}
			}

			out := cmd.OutOrStdout()
			if list {
				policies := eng.ListPolicies()
				if a.jsonOutput {
					return writeJSON(out, policies)
				}
				for _, p := range policies {
					state := "enabled"
					if !p.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(out, "%-26s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
				}
				return nil
			}

			all, err := a.loadTargets(cmd.Context())
			if err != nil {
				return err
			}

			result, err := eng.EvaluateAll(cmd.Context(), all)
			if err != nil {
				return err
			}

			if a.jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				for _, v := range result.Violations {
					fmt.Fprintln(out, v)
				}
				fmt.Fprintf(out, "%d targets, %d policies: %d errors, %d warnings, %d info\n",
					result.Targets, len(result.EvaluatedPolicies),
					result.Count(policy.SeverityError)+result.Count(policy.SeverityCritical),
					result.Count(policy.SeverityWarning),
					result.Count(policy.SeverityInfo))
			}

			if !result.Passed {
				return errCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional .rego/.json policy files or directories")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "lowest failing severity: info, warning, error or critical")
	cmd.Flags().BoolVar(&noBuiltins, "no-builtins", false, "skip the built-in policies")
	cmd.Flags().StringSliceVar(&disabled, "disable", nil, "disable policies by name")
	cmd.Flags().BoolVar(&list, "list", false, "list policies instead of checking")
	a.addProjectFlags(cmd)
	return cmd
}
