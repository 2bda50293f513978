package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Settings cache maintenance",
		Long: `Inspect and maintain the settings cache.

Cached settings are keyed by project parameters and action and expire after
cache.ttl. The watch command invalidates them when project files change.`,
	}

	cmd.AddCommand(newCacheStatsCommand(a))
	cmd.AddCommand(newCacheListCommand(a))
	cmd.AddCommand(newCachePruneCommand(a))
	cmd.AddCommand(newCacheInvalidateCommand(a))
	cmd.AddCommand(newCacheClearCommand(a))

	return cmd
}

func newCacheStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "Retrievals: %d (%d expired)\n", stats.Retrievals, stats.Expired)
			fmt.Fprintf(out, "Targets:    %d\n", stats.Targets)
			fmt.Fprintf(out, "Projects:   %d\n", stats.Projects)
			if stats.Oldest != nil {
				fmt.Fprintf(out, "Oldest:     %s\n", stats.Oldest.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCacheListCommand(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached retrievals, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			retrievals, err := store.ListRetrievals(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, retrievals)
			}
			for _, r := range retrievals {
				action := r.Action.String()
				if action == "" {
					action = "-"
				}
				fmt.Fprintf(out, "%s  %-8s %-20s %2d targets  expires %s\n",
					r.ProjectPath, action, r.Scheme, r.TargetCount, r.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of retrievals")
	cmd.Flags().IntVar(&offset, "offset", 0, "retrievals to skip")
	return cmd
}

func newCachePruneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired cache entries",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.DeleteExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired retrievals\n", n)
			return nil
		},
	}
}

func newCacheInvalidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate DIR",
		Short: "Drop cached settings for every project under DIR",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return configError(err)
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.InvalidateDir(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d retrievals under %s\n", n, dir)
			return nil
		},
	}
}

func newCacheClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d retrievals\n", n)
			return nil
		},
	}
}
