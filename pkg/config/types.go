package config

import (
	"time"

	"github.com/xcsettings/xcsettings/pkg/telemetry"
)

// Config is the xcsettings configuration file.
type Config struct {
	// Xcodebuild controls how settings are read.
	Xcodebuild XcodebuildConfig `yaml:"xcodebuild"`

	// Remote runs xcodebuild on a build host over SSH when enabled.
	Remote RemoteConfig `yaml:"remote"`

	// Cache controls the SQLite settings cache.
	Cache CacheConfig `yaml:"cache"`

	// Policy lists rego policies evaluated by `check`.
	Policy PolicyConfig `yaml:"policy"`

	// Watch configures `watch`.
	Watch WatchConfig `yaml:"watch"`

	// Script configures `eval`.
	Script ScriptConfig `yaml:"script"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// XcodebuildConfig controls xcodebuild invocations.
type XcodebuildConfig struct {
	// Path is the xcodebuild executable.
	Path string `yaml:"path" validate:"required"`

	// Timeout bounds each attempt. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Retries is the number of extra attempts after a failure.
	Retries int `yaml:"retries" validate:"gte=0,lte=20"`

	// WorkaroundAction is passed to xcodebuild in place of the requested
	// action.
	WorkaroundAction string `yaml:"workaround_action" validate:"omitempty,oneof=none build analyze archive test installsrc install clean"`

	// DerivedDataPath is passed as -derivedDataPath when set.
	DerivedDataPath string `yaml:"derived_data_path"`
}

// RemoteConfig describes a macOS build host reached over SSH.
type RemoteConfig struct {
	Enabled               bool          `yaml:"enabled"`
	Host                  string        `yaml:"host" validate:"required_if=Enabled true"`
	Port                  int           `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User                  string        `yaml:"user" validate:"required_if=Enabled true"`
	AuthMethod            string        `yaml:"auth_method" validate:"omitempty,oneof=password key"`
	Password              string        `yaml:"password"`
	PrivateKeyPath        string        `yaml:"private_key_path"`
	PrivateKeyPassphrase  string        `yaml:"private_key_passphrase"`
	KnownHostsPath        string        `yaml:"known_hosts_path"`
	StrictHostKeyChecking bool          `yaml:"strict_host_key_checking"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout" validate:"gte=0"`
	WorkDir               string        `yaml:"work_dir"`
}

// CacheConfig controls the settings cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir holds the cache database. Defaults to the user cache directory.
	Dir string `yaml:"dir" validate:"required_if=Enabled true"`

	// TTL is how long cached settings stay valid.
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

// PolicyConfig lists policy sources.
type PolicyConfig struct {
	// Dirs are directories scanned for .rego files.
	Dirs []string `yaml:"dirs" validate:"dive,required"`

	// Builtins enables the bundled policies.
	Builtins bool `yaml:"builtins"`

	// FailOn is the lowest severity that makes `check` fail.
	FailOn string `yaml:"fail_on" validate:"omitempty,oneof=critical error warning info"`
}

// WatchConfig configures project watching.
type WatchConfig struct {
	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// Refresh reloads settings after invalidation.
	Refresh bool `yaml:"refresh"`
}

// ScriptConfig configures Starlark evaluation.
type ScriptConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}
