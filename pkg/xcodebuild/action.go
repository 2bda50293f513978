package xcodebuild

import (
	"fmt"
	"strings"
)

// Action is an xcodebuild build action. The zero value means no action was
// requested.
type Action int

const (
	ActionNone Action = iota
	ActionBuild
	ActionAnalyze
	ActionArchive
	ActionTest
	ActionInstallSource
	ActionInstall
	ActionClean
)

var actionNames = map[Action]string{
	ActionBuild:         "build",
	ActionAnalyze:       "analyze",
	ActionArchive:       "archive",
	ActionTest:          "test",
	ActionInstallSource: "installsrc",
	ActionInstall:       "install",
	ActionClean:         "clean",
}

// String returns the name xcodebuild uses on the command line, or "" for
// ActionNone.
func (a Action) String() string {
	return actionNames[a]
}

// ParseAction decodes an action name. The empty string decodes to ActionNone.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return ActionNone, nil
	}
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown build action %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
