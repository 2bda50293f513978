package xcodebuild

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ProjectKind distinguishes workspaces from standalone projects.
type ProjectKind string

const (
	ProjectKindWorkspace ProjectKind = "workspace"
	ProjectKindProject   ProjectKind = "project"
)

// ProjectLocator identifies the workspace or project xcodebuild operates on.
type ProjectLocator struct {
	Kind ProjectKind `json:"kind" yaml:"kind"`
	Path string      `json:"path" yaml:"path"`
}

// LocateProject infers the locator kind from the path extension.
func LocateProject(path string) (ProjectLocator, error) {
	switch filepath.Ext(strings.TrimSuffix(path, "/")) {
	case ".xcworkspace":
		return ProjectLocator{Kind: ProjectKindWorkspace, Path: path}, nil
	case ".xcodeproj":
		return ProjectLocator{Kind: ProjectKindProject, Path: path}, nil
	default:
		return ProjectLocator{}, fmt.Errorf("%s is neither an .xcworkspace nor an .xcodeproj", path)
	}
}

// Name returns the file name of the workspace or project without extension.
func (p ProjectLocator) Name() string {
	base := filepath.Base(strings.TrimSuffix(p.Path, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Dir returns the directory containing the workspace or project bundle.
func (p ProjectLocator) Dir() string {
	return filepath.Dir(strings.TrimSuffix(p.Path, "/"))
}

// IsZero reports whether no project has been set.
func (p ProjectLocator) IsZero() bool {
	return p.Path == ""
}

func (p ProjectLocator) String() string {
	if p.IsZero() {
		return "<no project>"
	}
	return fmt.Sprintf("%s %s", p.Kind, p.Path)
}

// Arguments are the project parameters of one xcodebuild invocation.
type Arguments struct {
	Project         ProjectLocator `json:"project"`
	Scheme          string         `json:"scheme,omitempty"`
	Configuration   string         `json:"configuration,omitempty"`
	SDK             string         `json:"sdk,omitempty"`
	DerivedDataPath string         `json:"derived_data_path,omitempty"`
	Toolchain       string         `json:"toolchain,omitempty"`
	Destination     string         `json:"destination,omitempty"`

	// OnlyActiveArchitecture is passed as ONLY_ACTIVE_ARCH when set.
	OnlyActiveArchitecture *bool `json:"only_active_arch,omitempty"`
}

// Args renders the arguments as xcodebuild flags.
func (a Arguments) Args() []string {
	var args []string
	switch a.Project.Kind {
	case ProjectKindWorkspace:
		args = append(args, "-workspace", a.Project.Path)
	case ProjectKindProject:
		args = append(args, "-project", a.Project.Path)
	}
	if a.Scheme != "" {
		args = append(args, "-scheme", a.Scheme)
	}
	if a.Configuration != "" {
		args = append(args, "-configuration", a.Configuration)
	}
	if a.SDK != "" {
		args = append(args, "-sdk", a.SDK)
	}
	if a.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", a.DerivedDataPath)
	}
	if a.Toolchain != "" {
		args = append(args, "-toolchain", a.Toolchain)
	}
	if a.Destination != "" {
		args = append(args, "-destination", a.Destination)
	}
	if a.OnlyActiveArchitecture != nil {
		value := "NO"
		if *a.OnlyActiveArchitecture {
			value = "YES"
		}
		args = append(args, "ONLY_ACTIVE_ARCH="+value)
	}
	return args
}

// Fingerprint is a stable key for the invocation these arguments describe.
func (a Arguments) Fingerprint() string {
	onlyActive := ""
	if a.OnlyActiveArchitecture != nil {
		onlyActive = strconv.FormatBool(*a.OnlyActiveArchitecture)
	}
	return strings.Join([]string{
		string(a.Project.Kind), a.Project.Path, a.Scheme, a.Configuration, a.SDK,
		a.DerivedDataPath, a.Toolchain, a.Destination, onlyActive,
	}, "\x1f")
}

// Command is a complete xcodebuild command line.
type Command struct {
	// Tool is the xcodebuild executable. Empty means "xcodebuild" on PATH.
	Tool      string
	Actions   []Action
	Flags     []string
	Arguments Arguments
}

// Argv returns the argument vector excluding the tool itself.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Actions)+len(c.Flags)+8)
	for _, action := range c.Actions {
		if action != ActionNone {
			argv = append(argv, action.String())
		}
	}
	argv = append(argv, c.Flags...)
	return append(argv, c.Arguments.Args()...)
}

// ToolPath returns the executable to run.
func (c Command) ToolPath() string {
	if c.Tool == "" {
		return "xcodebuild"
	}
	return c.Tool
}

func (c Command) String() string {
	return strings.Join(append([]string{c.ToolPath()}, c.Argv()...), " ")
}
