package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/telemetry"
	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// DefaultFileName is looked up in the working directory when no path is
// given.
const DefaultFileName = ".xcsettings.yaml"

// Environment overrides.
const (
	EnvXcodebuild = "XCSETTINGS_XCODEBUILD"
	EnvTimeout    = "XCSETTINGS_TIMEOUT"
	EnvCacheDir   = "XCSETTINGS_CACHE_DIR"
	EnvLogLevel   = "XCSETTINGS_LOG_LEVEL"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	policy := buildsettings.DefaultPolicy()

	cacheDir := ""
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "xcsettings")
	}

	return &Config{
		Xcodebuild: XcodebuildConfig{
			Path:             "xcodebuild",
			Timeout:          policy.Timeout,
			Retries:          policy.Retries,
			WorkaroundAction: policy.WorkaroundAction.String(),
		},
		Remote: RemoteConfig{
			Port:                  22,
			AuthMethod:            string(ssh.AuthMethodKey),
			StrictHostKeyChecking: true,
			ConnectionTimeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: cacheDir != "",
			Dir:     cacheDir,
			TTL:     24 * time.Hour,
		},
		Policy: PolicyConfig{
			Builtins: true,
			FailOn:   "error",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			Refresh:  true,
		},
		Script: ScriptConfig{
			Timeout: 10 * time.Second,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path means DefaultFileName in
// the working directory, and a missing default file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvXcodebuild); ok && v != "" {
		c.Xcodebuild.Path = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Xcodebuild.Timeout = d
	}
	if v, ok := lookup(EnvCacheDir); ok && v != "" {
		c.Cache.Dir = v
		c.Cache.Enabled = true
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Telemetry.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// parseTimeout accepts a Go duration or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return d, nil
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := xcodebuild.ParseAction(c.Xcodebuild.WorkaroundAction); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.TTL == 0 {
		return fmt.Errorf("cache ttl must be positive when the cache is enabled")
	}
	return c.Telemetry.Validate()
}

// RetrievalPolicy converts the xcodebuild section to a retrieval policy.
func (c *Config) RetrievalPolicy() buildsettings.Policy {
	action, _ := xcodebuild.ParseAction(c.Xcodebuild.WorkaroundAction)
	return buildsettings.Policy{
		Timeout:          c.Xcodebuild.Timeout,
		Retries:          c.Xcodebuild.Retries,
		WorkaroundAction: action,
	}
}

// CachePath is the cache database file.
func (c *Config) CachePath() string {
	return filepath.Join(c.Cache.Dir, "settings.db")
}

// SSHConfig converts the remote section to a transport configuration.
func (c *Config) SSHConfig() *ssh.Config {
	r := c.Remote
	return &ssh.Config{
		Host:                  r.Host,
		Port:                  r.Port,
		User:                  r.User,
		AuthMethod:            ssh.AuthMethod(r.AuthMethod),
		Password:              r.Password,
		PrivateKeyPath:        r.PrivateKeyPath,
		PrivateKeyPassphrase:  r.PrivateKeyPassphrase,
		KnownHostsPath:        r.KnownHostsPath,
		StrictHostKeyChecking: r.StrictHostKeyChecking,
		ConnectionTimeout:     r.ConnectionTimeout,
		WorkDir:               r.WorkDir,
	}
}
