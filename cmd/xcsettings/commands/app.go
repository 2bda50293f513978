package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/config"
	"github.com/xcsettings/xcsettings/pkg/engine"
	"github.com/xcsettings/xcsettings/pkg/stores"
	"github.com/xcsettings/xcsettings/pkg/telemetry"
	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

type buildInfo struct {
	version   string
	commit    string
	buildDate string
}

// app holds the flag values of one invocation and the dependencies built
// from them. Dependencies are created on first use and released by close.
type app struct {
	info buildInfo

	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	noCache    bool

	// Project flags
	workspace       string
	project         string
	scheme          string
	configuration   string
	sdk             string
	destination     string
	derivedDataPath string
	actionName      string
	targets         []string

	// runner, when set, replaces the configured local or remote runner.
	runner xcodebuild.Runner

	cfg     *config.Config
	tel     *telemetry.Telemetry
	closers []func() error
}

func (a *app) addProjectFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.workspace, "workspace", "w", "", "path to an .xcworkspace")
	flags.StringVarP(&a.project, "project", "p", "", "path to an .xcodeproj")
	flags.StringVarP(&a.scheme, "scheme", "s", "", "scheme to read settings for")
	flags.StringVar(&a.configuration, "configuration", "", "build configuration, e.g. Release")
	flags.StringVar(&a.sdk, "sdk", "", "SDK, e.g. iphoneos")
	flags.StringVar(&a.destination, "destination", "", "xcodebuild destination specifier")
	flags.StringVar(&a.derivedDataPath, "derived-data-path", "", "DerivedData directory")
	flags.StringVarP(&a.actionName, "action", "a", "", "build action the settings are for (build, archive, test, ...)")
	flags.StringSliceVarP(&a.targets, "target", "t", nil, "only report these targets")
	flags.BoolVar(&a.noCache, "no-cache", false, "bypass the settings cache")
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, configError(err)
	}
	if a.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	cfg.Telemetry.ServiceVersion = a.info.version

	a.cfg = cfg
	return cfg, nil
}

func (a *app) telemetry() (*telemetry.Telemetry, error) {
	if a.tel != nil {
		return a.tel, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, configError(fmt.Errorf("failed to set up telemetry: %w", err))
	}
	a.tel = tel
	a.closers = append(a.closers, func() error {
		return tel.Shutdown(context.Background())
	})
	return tel, nil
}

func (a *app) logger(component string) zerolog.Logger {
	tel, err := a.telemetry()
	if err != nil {
		return zerolog.Nop()
	}
	return tel.Logger.NewComponentLogger(component)
}

// request builds the retrieval request from the project flags.
func (a *app) request() (engine.Request, error) {
	cfg, err := a.config()
	if err != nil {
		return engine.Request{}, err
	}

	action, err := xcodebuild.ParseAction(a.actionName)
	if err != nil {
		return engine.Request{}, configError(err)
	}

	locator, err := a.locateProject()
	if err != nil {
		return engine.Request{}, configError(err)
	}

	derivedData := a.derivedDataPath
	if derivedData == "" {
		derivedData = cfg.Xcodebuild.DerivedDataPath
	}

	return engine.Request{
		Args: xcodebuild.Arguments{
			Project:         locator,
			Scheme:          a.scheme,
			Configuration:   a.configuration,
			SDK:             a.sdk,
			Destination:     a.destination,
			DerivedDataPath: derivedData,
		},
		Action: action,
	}, nil
}

// locateProject uses --workspace or --project, or else the single workspace
// or project in the working directory.
func (a *app) locateProject() (xcodebuild.ProjectLocator, error) {
	switch {
	case a.workspace != "" && a.project != "":
		return xcodebuild.ProjectLocator{}, errors.New("--workspace and --project are mutually exclusive")
	case a.workspace != "":
		return xcodebuild.ProjectLocator{Kind: xcodebuild.ProjectKindWorkspace, Path: a.workspace}, nil
	case a.project != "":
		return xcodebuild.ProjectLocator{Kind: xcodebuild.ProjectKindProject, Path: a.project}, nil
	}

	for _, pattern := range []string{"*.xcworkspace", "*.xcodeproj"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return xcodebuild.ProjectLocator{}, err
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return xcodebuild.LocateProject(matches[0])
		default:
			return xcodebuild.ProjectLocator{}, fmt.Errorf("found %d %s bundles; pass --workspace or --project", len(matches), filepath.Ext(pattern))
		}
	}
	return xcodebuild.ProjectLocator{}, errors.New("no workspace or project in the working directory; pass --workspace or --project")
}

func (a *app) xcodebuildRunner() (xcodebuild.Runner, error) {
	if a.runner != nil {
		return a.runner, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if !cfg.Remote.Enabled {
		return xcodebuild.NewLocalRunner(), nil
	}

	client, err := ssh.NewClient(cfg.SSHConfig(), a.logger("ssh"))
	if err != nil {
		return nil, configError(err)
	}
	a.closers = append(a.closers, client.Close)
	return xcodebuild.NewRemoteRunner(client), nil
}

// openStore opens the settings cache.
func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		return nil, configError(errors.New("the settings cache is disabled"))
	}
	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: cfg.CachePath()})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings cache: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// service builds the retrieval service. The cache is skipped with a warning
// when it cannot be opened.
func (a *app) service(ctx context.Context) (*engine.Service, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	tel, err := a.telemetry()
	if err != nil {
		return nil, err
	}
	runner, err := a.xcodebuildRunner()
	if err != nil {
		return nil, err
	}

	retriever := buildsettings.NewRetriever(runner,
		buildsettings.WithPolicy(cfg.RetrievalPolicy()),
		buildsettings.WithTool(cfg.Xcodebuild.Path),
		buildsettings.WithLogger(a.logger("retriever")),
		buildsettings.WithMetrics(tel.Metrics),
		buildsettings.WithTracer(tel.Tracer),
	)

	opts := []engine.ServiceOption{
		engine.WithServiceLogger(a.logger("service")),
		engine.WithServiceMetrics(tel.Metrics),
	}
	if cfg.Cache.Enabled && !a.noCache {
		store, err := a.openStore(ctx)
		if err != nil {
			log := a.logger("service")
			log.Warn().Err(err).Msg("Continuing without the settings cache")
		} else {
			opts = append(opts, engine.WithStore(store, cfg.Cache.TTL))
		}
	}

	return engine.NewService(retriever, opts...), nil
}

// loadTargets loads settings for the project flags, filtered by --target.
func (a *app) loadTargets(ctx context.Context) ([]*buildsettings.BuildSettings, error) {
	req, err := a.request()
	if err != nil {
		return nil, err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}

	all, err := svc.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	return filterTargets(all, a.targets)
}

func filterTargets(all []*buildsettings.BuildSettings, names []string) ([]*buildsettings.BuildSettings, error) {
	if len(names) == 0 {
		return all, nil
	}

	available := make([]string, 0, len(all))
	for _, b := range all {
		available = append(available, b.Target)
	}
	for _, name := range names {
		if !slices.Contains(available, name) {
			return nil, configError(fmt.Errorf("target %q not found; available targets: %v", name, available))
		}
	}

	filtered := make([]*buildsettings.BuildSettings, 0, len(names))
	for _, b := range all {
		if slices.Contains(names, b.Target) {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
