package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/config"
	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

const twoTargets = `Build settings for action build and target App:
    PRODUCT_NAME = App
    PRODUCT_TYPE = com.apple.product-type.application
    MACH_O_TYPE = mh_execute
    SUPPORTED_PLATFORMS = iphoneos iphonesimulator
    BUILT_PRODUCTS_DIR = /dd/Release-iphoneos
    WRAPPER_NAME = App.app
    EXECUTABLE_PATH = App.app/App
    ENABLE_BITCODE = NO

Build settings for action build and target Kit:
    PRODUCT_NAME = Kit
    PRODUCT_TYPE = com.apple.product-type.framework
    MACH_O_TYPE = staticlib
    SUPPORTED_PLATFORMS = iphoneos
    BUILT_PRODUCTS_DIR = /dd/Release-iphoneos
    WRAPPER_NAME = Kit.framework
    ENABLE_BITCODE = YES
`

// fakeXcodebuild records commands and replies with fixed output.
type fakeXcodebuild struct {
	mu     sync.Mutex
	calls  []xcodebuild.Command
	output string
	err    error
}

func (f *fakeXcodebuild) Run(_ context.Context, cmd xcodebuild.Command) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.output), nil
}

func (f *fakeXcodebuild) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// setupWorkdir isolates the config file and cache of a test.
func setupWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvCacheDir, filepath.Join(dir, "cache"))
	t.Setenv(config.EnvTimeout, "")
	return dir
}

func execute(t *testing.T, runner xcodebuild.Runner, args ...string) (string, error) {
	t.Helper()
	a := &app{
		info:   buildInfo{version: "1.2.3", commit: "abc123", buildDate: "2026-01-01"},
		runner: runner,
	}
	cmd := newRootCommand(a)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := run(context.Background(), a, cmd)
	return out.String(), err
}

func TestShow(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	out, err := execute(t, runner, "show", "-p", "/src/App.xcodeproj", "--scheme", "App", "--target", "Kit")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	want := `Build settings for target Kit:
    BUILT_PRODUCTS_DIR = /dd/Release-iphoneos
    ENABLE_BITCODE = YES
    MACH_O_TYPE = staticlib
    PRODUCT_NAME = Kit
    PRODUCT_TYPE = com.apple.product-type.framework
    SUPPORTED_PLATFORMS = iphoneos
    WRAPPER_NAME = Kit.framework
`
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	argv := strings.Join(runner.calls[0].Argv(), " ")
	if !strings.Contains(argv, "-showBuildSettings") || !strings.Contains(argv, "-project /src/App.xcodeproj") || !strings.Contains(argv, "-scheme App") {
		t.Errorf("unexpected argv %q", argv)
	}
}

func TestShowJSON(t *testing.T) {
	setupWorkdir(t)
	out, err := execute(t, &fakeXcodebuild{output: twoTargets}, "show", "-w", "/src/App.xcworkspace", "--action", "archive", "--json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var docs []settingsJSON
	if err := json.Unmarshal([]byte(out), &docs); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(docs) != 2 || docs[1].Target != "Kit" || docs[1].Action != "archive" || docs[1].Settings["MACH_O_TYPE"] != "staticlib" {
		t.Errorf("unexpected documents %+v", docs)
	}
}

func TestGet(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"all targets", []string{"get", "WRAPPER_NAME"}, "App: App.app\nKit: Kit.framework\n"},
		{"one target", []string{"get", "WRAPPER_NAME", "-t", "Kit"}, "Kit.framework\n"},
		{"json", []string{"get", "PRODUCT_NAME", "-t", "App", "--json"}, "[\n  {\n    \"target\": \"App\",\n    \"value\": \"App\"\n  }\n]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, runner, append(tt.args, "-p", "/src/App.xcodeproj", "--no-cache")...)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := execute(t, runner, "get", "PRODUCT_MODULE_NAME", "-p", "/src/App.xcodeproj", "--no-cache")
	if !buildsettings.IsMissingSetting(err) || ExitCode(err) != ExitFailure {
		t.Errorf("expected missing setting failure, got %v", err)
	}
}

func TestQuery(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sdks", []string{"query", "sdks"}, "App: iphoneos iphonesimulator\nKit: iphoneos\n"},
		{"wrapper url", []string{"query", "wrapper-url", "-t", "Kit"}, "/dd/Release-iphoneos/Kit.framework\n"},
		{"framework type", []string{"query", "framework-type", "-t", "Kit"}, "static\n"},
		{"bitcode", []string{"query", "bitcode"}, "App: false\nKit: true\n"},
		{"destination", []string{"query", "destination", "/out", "-t", "App"}, "/out\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, runner, append(tt.args, "-p", "/src/App.xcodeproj")...)
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if runner.count() != 1 {
		t.Errorf("expected one xcodebuild run with the cache, got %d", runner.count())
	}
}

func TestQueryReportsFailingTargets(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	out, err := execute(t, runner, "query", "executable-url", "-p", "/src/App.xcodeproj")
	if !buildsettings.IsMissingSetting(err) || ExitCode(err) != ExitFailure {
		t.Fatalf("expected missing setting failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "target Kit") || strings.Contains(err.Error(), "target App") {
		t.Errorf("expected only Kit in the error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a line per target, got %q", out)
	}
	if lines[0] != "App: /dd/Release-iphoneos/App.app/App" {
		t.Errorf("unexpected App line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Kit: error: ") || !strings.Contains(lines[1], "EXECUTABLE_PATH") {
		t.Errorf("unexpected Kit line %q", lines[1])
	}

	out, err = execute(t, runner, "query", "executable-url", "-p", "/src/App.xcodeproj", "--json")
	if !buildsettings.IsMissingSetting(err) {
		t.Fatalf("expected missing setting failure, got %v", err)
	}
	var values []struct {
		Target string `json:"target"`
		Value  any    `json:"value"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &values); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(values) != 2 || values[0].Value != "/dd/Release-iphoneos/App.app/App" || values[0].Error != "" || values[1].Error == "" {
		t.Errorf("unexpected values %+v", values)
	}
}

func TestQueryUsageErrors(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	for _, args := range [][]string{
		{"query", "nonsense"},
		{"query", "destination"},
		{"query", "sdks", "extra"},
		{"query"},
		{"show", "--bogus-flag"},
		{"show", "-w", "/a.xcworkspace", "-p", "/b.xcodeproj"},
		{"show", "-p", "/src/App.xcodeproj", "--action", "deploy"},
		{"show", "-p", "/src/App.xcodeproj", "--target", "Missing"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, runner, args...)
			if ExitCode(err) != ExitConfig {
				t.Errorf("expected exit code %d, got %d (%v)", ExitConfig, ExitCode(err), err)
			}
		})
	}
}

func TestLocateProject(t *testing.T) {
	dir := setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	if _, err := execute(t, runner, "show"); ExitCode(err) != ExitConfig {
		t.Fatalf("expected config error without a project, got %v", err)
	}

	for _, name := range []string{"App.xcodeproj", "App.xcworkspace"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	if _, err := execute(t, runner, "show", "--no-cache"); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	argv := strings.Join(runner.calls[len(runner.calls)-1].Argv(), " ")
	if !strings.Contains(argv, "-workspace App.xcworkspace") {
		t.Errorf("expected the workspace to win, got %q", argv)
	}
}

func TestEval(t *testing.T) {
	dir := setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	out, err := execute(t, runner, "eval", `static = query("framework-type") == "static"`, "-p", "/src/App.xcodeproj")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	want := "App:\n  static = false\nKit:\n  static = true\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	program := filepath.Join(dir, "check.star")
	if err := os.WriteFile(program, []byte("print(target)\nname = lookup(\"PRODUCT_MODULE_NAME\")\n"), 0o644); err != nil {
		t.Fatalf("failed to write program: %v", err)
	}
	out, err = execute(t, runner, "eval", "-f", program, "-p", "/src/App.xcodeproj")
	if err == nil || !strings.Contains(err.Error(), "target App") {
		t.Fatalf("expected failure on App, got %v", err)
	}
	if !strings.Contains(out, "App:\n  # App\n  error:") {
		t.Errorf("expected the failure in the output, got %q", out)
	}

	if _, err := execute(t, runner, "eval", "-p", "/src/App.xcodeproj"); ExitCode(err) != ExitConfig {
		t.Errorf("expected config error without a program, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	out, err := execute(t, runner, "check", "-p", "/src/App.xcodeproj")
	if !errors.Is(err, errCheckFailed) || ExitCode(err) != ExitFailure {
		t.Fatalf("expected failed check, got %v", err)
	}
	for _, want := range []string{
		"[warning] Kit: ENABLE_BITCODE is YES; bitcode is deprecated (bitcode, ENABLE_BITCODE)",
		"[error] Kit: static framework Kit does not define PRODUCT_MODULE_NAME (static-framework-module, PRODUCT_MODULE_NAME)",
		"2 targets, 6 policies: 1 errors, 1 warnings, 0 info",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	if _, err := execute(t, runner, "check", "-p", "/src/App.xcodeproj", "--disable", "static-framework-module"); err != nil {
		t.Errorf("expected warnings alone to pass, got %v", err)
	}
	if _, err := execute(t, runner, "check", "-p", "/src/App.xcodeproj", "--disable", "static-framework-module", "--fail-on", "warning"); !errors.Is(err, errCheckFailed) {
		t.Errorf("expected warnings to fail at fail-on warning, got %v", err)
	}
	if _, err := execute(t, runner, "check", "--fail-on", "fatal"); ExitCode(err) != ExitConfig {
		t.Errorf("expected config error for bad severity, got %v", err)
	}
}

func TestCheckCustomPolicy(t *testing.T) {
	dir := setupWorkdir(t)
	policyDir := filepath.Join(dir, "policies")
	if err := os.Mkdir(policyDir, 0o755); err != nil {
		t.Fatalf("failed to create policy dir: %v", err)
	}
	rego := `# Apps need a bundle identifier.
# severity: error
package custom.bundle_id

import rego.v1

deny contains msg if {
	input.settings.PRODUCT_TYPE == "com.apple.product-type.application"
	not input.settings.PRODUCT_BUNDLE_IDENTIFIER
	msg := "missing PRODUCT_BUNDLE_IDENTIFIER"
}
`
	if err := os.WriteFile(filepath.Join(policyDir, "bundle-id.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	out, err := execute(t, &fakeXcodebuild{output: twoTargets}, "check", "--list", "--policy", policyDir, "--no-builtins")
	if err != nil {
		t.Fatalf("check --list failed: %v", err)
	}
	if !strings.Contains(out, "bundle-id") || strings.Contains(out, "bitcode") {
		t.Errorf("unexpected policy list:\n%s", out)
	}

	out, err = execute(t, &fakeXcodebuild{output: twoTargets}, "check", "-p", "/src/App.xcodeproj", "--policy", policyDir, "--no-builtins", "--json")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected failed check, got %v", err)
	}
	var result struct {
		Passed     bool `json:"passed"`
		Violations []struct {
			Policy string `json:"policy"`
			Target string `json:"target"`
		} `json:"violations"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if result.Passed || len(result.Violations) != 1 || result.Violations[0].Target != "App" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCache(t *testing.T) {
	setupWorkdir(t)
	runner := &fakeXcodebuild{output: twoTargets}

	for range 2 {
		if _, err := execute(t, runner, "show", "-p", "/src/App.xcodeproj", "--scheme", "App"); err != nil {
			t.Fatalf("show failed: %v", err)
		}
	}
	if runner.count() != 1 {
		t.Errorf("expected the second show to hit the cache, got %d runs", runner.count())
	}

	out, err := execute(t, nil, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(out, "Retrievals: 1 (0 expired)") || !strings.Contains(out, "Targets:    2") {
		t.Errorf("unexpected stats:\n%s", out)
	}

	out, err = execute(t, nil, "cache", "list")
	if err != nil {
		t.Fatalf("cache list failed: %v", err)
	}
	if !strings.Contains(out, "/src/App.xcodeproj") {
		t.Errorf("unexpected list:\n%s", out)
	}

	out, err = execute(t, nil, "cache", "invalidate", "/src")
	if err != nil || !strings.Contains(out, "Invalidated 1 retrievals under /src") {
		t.Errorf("unexpected invalidate result %q, %v", out, err)
	}

	if _, err := execute(t, runner, "show", "-p", "/src/App.xcodeproj", "--scheme", "App"); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if runner.count() != 2 {
		t.Errorf("expected a run after invalidation, got %d", runner.count())
	}

	out, err = execute(t, nil, "cache", "prune")
	if err != nil || out != "Pruned 0 expired retrievals\n" {
		t.Errorf("unexpected prune result %q, %v", out, err)
	}
	out, err = execute(t, nil, "cache", "clear")
	if err != nil || out != "Cleared 1 retrievals\n" {
		t.Errorf("unexpected clear result %q, %v", out, err)
	}
}

func TestVersion(t *testing.T) {
	setupWorkdir(t)
	out, err := execute(t, nil, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "xcsettings 1.2.3 (commit: abc123, built: 2026-01-01, go") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestConfigErrors(t *testing.T) {
	dir := setupWorkdir(t)
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte("xcodebuild:\n  retries: -1\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := execute(t, &fakeXcodebuild{output: twoTargets}, "show", "-p", "/src/App.xcodeproj")
	if ExitCode(err) != ExitConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", configError(errors.New("bad")), ExitConfig},
		{"check failed", errCheckFailed, ExitFailure},
		{"tool missing", &xcodebuild.TaskError{Err: &exec.Error{Name: "xcodebuild", Err: exec.ErrNotFound}}, ExitEnvironment},
		{"connect", &xcodebuild.TaskError{Err: &ssh.TransportError{Op: "connect", Err: errors.New("refused")}}, ExitEnvironment},
		{"remote command not found", &ssh.TransportError{Op: "run", ExitCode: 127, Err: errors.New("exit 127")}, ExitEnvironment},
		{"remote failure", &ssh.TransportError{Op: "run", ExitCode: 65, Err: errors.New("exit 65")}, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTimeoutExitCode(t *testing.T) {
	setupWorkdir(t)
	t.Setenv(config.EnvTimeout, "50ms")

	blocking := xcodebuild.RunnerFunc(func(ctx context.Context, _ xcodebuild.Command) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(cfgPath, []byte("xcodebuild:\n  retries: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := execute(t, blocking, "show", "-c", cfgPath, "-p", "/src/App.xcodeproj", "--no-cache")
	if !buildsettings.IsTimeout(err) || ExitCode(err) != ExitEnvironment {
		t.Errorf("expected a timeout environment error, got %v", err)
	}
}

func TestQueryHelpDescribesDestination(t *testing.T) {
	long := newQueryCommand(&app{}).Long
	if !strings.Contains(long, "DIR/Static for static frameworks") || strings.Contains(long, "xcframework name") {
		t.Errorf("unexpected destination help:\n%s", long)
	}
}
