package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	a := &app{info: buildInfo{version: version, commit: commit, buildDate: buildDate}}
	return run(ctx, a, newRootCommand(a))
}

// run executes cmd and releases everything the invocation opened.
func run(ctx context.Context, a *app, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xcsettings",
		Short: "Read and query xcodebuild build settings",
		Long: `xcsettings reads the build settings xcodebuild reports for a workspace or
project and answers questions about them: supported SDKs, product types,
where built products land and what an archive contains.

Features:
  - Bounded, retried xcodebuild invocations, locally or over SSH
  - Derived queries over raw settings
  - A settings cache invalidated when project files change
  - Starlark scripting and Rego policies over settings`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", a.info.version, a.info.commit, a.info.buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default .xcsettings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output in JSON format")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return configError(err)
	})

	rootCmd.AddCommand(newShowCommand(a))
	rootCmd.AddCommand(newGetCommand(a))
	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newEvalCommand(a))
	rootCmd.AddCommand(newCheckCommand(a))
	rootCmd.AddCommand(newCacheCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))
	rootCmd.AddCommand(newVersionCommand(a))

	return rootCmd
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return configError(validate(cmd, args))
	}
}
