package buildsettings

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// BuildSettings holds the settings xcodebuild reported for one target.
// Values are immutable once emitted by the parser.
type BuildSettings struct {
	// Target is the name from the settings block header.
	Target string

	// Arguments are the project parameters the settings were read with.
	Arguments xcodebuild.Arguments

	// Action is the build action the caller asked about. It need not match
	// the action xcodebuild was invoked with.
	Action xcodebuild.Action

	settings map[string]string
}

// New builds a BuildSettings from an explicit map. The map is copied.
func New(target string, settings map[string]string, args xcodebuild.Arguments, action xcodebuild.Action) *BuildSettings {
	return &BuildSettings{
		Target:    target,
		Arguments: args,
		Action:    action,
		settings:  maps.Clone(nonNil(settings)),
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Lookup returns the value of key, or a MISSING_BUILD_SETTING error.
func (b *BuildSettings) Lookup(key string) (string, error) {
	value, ok := b.settings[key]
	if !ok {
		return "", missingSettingError(key)
	}
	return value, nil
}

// Has reports whether key is present.
func (b *BuildSettings) Has(key string) bool {
	_, ok := b.settings[key]
	return ok
}

// Keys returns all setting names in sorted order.
func (b *BuildSettings) Keys() []string {
	return slices.Sorted(maps.Keys(b.settings))
}

// Len returns the number of settings.
func (b *BuildSettings) Len() int {
	return len(b.settings)
}

// Settings returns a copy of the raw settings.
func (b *BuildSettings) Settings() map[string]string {
	return maps.Clone(b.settings)
}

// Equal reports whether two values carry the same target, action, arguments
// and settings.
func (b *BuildSettings) Equal(other *BuildSettings) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.Target == other.Target &&
		b.Action == other.Action &&
		b.Arguments.Fingerprint() == other.Arguments.Fingerprint() &&
		maps.Equal(b.settings, other.settings)
}

func (b *BuildSettings) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Build settings for target %q:", b.Target)
	for _, key := range b.Keys() {
		fmt.Fprintf(&sb, " %s=%s", key, b.settings[key])
	}
	return sb.String()
}

// boolSetting reports whether key is exactly "YES".
func (b *BuildSettings) boolSetting(key string) (bool, error) {
	value, err := b.Lookup(key)
	if err != nil {
		return false, err
	}
	return value == "YES", nil
}
