package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/engine"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		metricsAddr string
		debounce    time.Duration
		refresh     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep cached settings in step with project changes",
		Long: `Load settings into the cache and watch the project directory.

When project.pbxproj, contents.xcworkspacedata, a scheme or an xcconfig file
changes, cached settings for projects under that directory are dropped and,
with --refresh, loaded again. Runs until interrupted.`,
		Example: `  xcsettings watch --scheme App --refresh --metrics-addr :9464`,
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.config()
			if err != nil {
				return err
			}
			req, err := a.request()
			if err != nil {
				return err
			}
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			if !svc.Cached() {
				return configError(errors.New("watch needs the settings cache; enable cache in the config and drop --no-cache"))
			}

			opts := engine.WatcherOptions{
				Debounce: cfg.Watch.Debounce,
				Refresh:  cfg.Watch.Refresh,
			}
			if cmd.Flags().Changed("debounce") {
				opts.Debounce = debounce
			}
			if cmd.Flags().Changed("refresh") {
				opts.Refresh = refresh
			}

			out := cmd.OutOrStdout()
			opts.Notify = func(inv engine.Invalidation) {
				if inv.Err != nil {
					fmt.Fprintf(out, "%s: invalidation failed: %v\n", inv.Root, inv.Err)
					return
				}
				failed := 0
				for _, resp := range inv.Refreshed {
					if resp.Err != nil {
						failed++
					}
				}
				fmt.Fprintf(out, "%s: %d files changed, %d retrievals dropped, %d refreshed, %d failed\n",
					inv.Root, len(inv.Files), inv.Removed, len(inv.Refreshed)-failed, failed)
			}

			all, err := svc.Load(ctx, req)
			if err != nil {
				return err
			}

			watcher, err := engine.NewWatcher(svc, a.logger("watcher"), opts)
			if err != nil {
				return err
			}
			if err := watcher.Track(req); err != nil {
				_ = watcher.Close()
				return err
			}

			if metricsAddr != "" {
				tel, err := a.telemetry()
				if err != nil {
					return err
				}
				if server := tel.Metrics.StartMetricsServer(metricsAddr); server != nil {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = server.Shutdown(shutdownCtx)
					}()
					fmt.Fprintf(out, "Serving metrics on %s\n", metricsAddr)
				}
			}

			fmt.Fprintf(out, "Cached %d targets; watching %s\n", len(all), req.Args.Project.Dir())
			return watcher.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&debounce, "debounce", engine.DefaultDebounce, "quiet period before invalidating")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload settings after invalidating them")
	a.addProjectFlags(cmd)
	return cmd
}
