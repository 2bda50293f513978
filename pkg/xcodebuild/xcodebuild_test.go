package xcodebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		want    Action
		wantErr bool
	}{
		{"", ActionNone, false},
		{"none", ActionNone, false},
		{"build", ActionBuild, false},
		{"Archive", ActionArchive, false},
		{" test ", ActionTest, false},
		{"installsrc", ActionInstallSource, false},
		{"deploy", ActionNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAction(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestActionTextRoundTrip(t *testing.T) {
	for action := range actionNames {
		text, err := action.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", action, err)
		}
		var decoded Action
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
		}
		if decoded != action {
			t.Errorf("round trip of %v gave %v", action, decoded)
		}
	}
}

func TestLocateProject(t *testing.T) {
	tests := []struct {
		path     string
		wantKind ProjectKind
		wantName string
		wantErr  bool
	}{
		{"App.xcworkspace", ProjectKindWorkspace, "App", false},
		{"/src/Kit/Kit.xcodeproj/", ProjectKindProject, "Kit", false},
		{"Package.swift", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			loc, err := LocateProject(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LocateProject(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if loc.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, loc.Kind)
			}
			if loc.Name() != tt.wantName {
				t.Errorf("expected name %s, got %s", tt.wantName, loc.Name())
			}
		})
	}
}

func TestCommandArgv(t *testing.T) {
	yes := true
	cmd := Command{
		Actions: []Action{ActionArchive},
		Flags:   []string{"-showBuildSettings", "-skipUnavailableActions"},
		Arguments: Arguments{
			Project:                ProjectLocator{Kind: ProjectKindWorkspace, Path: "App.xcworkspace"},
			Scheme:                 "App",
			Configuration:          "Release",
			SDK:                    "iphoneos",
			DerivedDataPath:        "/tmp/dd",
			OnlyActiveArchitecture: &yes,
		},
	}

	want := []string{
		"archive", "-showBuildSettings", "-skipUnavailableActions",
		"-workspace", "App.xcworkspace",
		"-scheme", "App",
		"-configuration", "Release",
		"-sdk", "iphoneos",
		"-derivedDataPath", "/tmp/dd",
		"ONLY_ACTIVE_ARCH=YES",
	}
	if diff := cmp.Diff(want, cmd.Argv()); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if cmd.ToolPath() != "xcodebuild" {
		t.Errorf("expected default tool xcodebuild, got %s", cmd.ToolPath())
	}
}

func TestCommandArgvSkipsNoneAction(t *testing.T) {
	cmd := Command{
		Actions:   []Action{ActionNone},
		Arguments: Arguments{Project: ProjectLocator{Kind: ProjectKindProject, Path: "Kit.xcodeproj"}},
	}
	want := []string{"-project", "Kit.xcodeproj"}
	if diff := cmp.Diff(want, cmd.Argv()); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestFingerprint(t *testing.T) {
	a := Arguments{Project: ProjectLocator{Kind: ProjectKindProject, Path: "Kit.xcodeproj"}, Scheme: "Kit"}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("expected equal arguments to share a fingerprint")
	}
	b.Configuration = "Debug"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("expected different configurations to change the fingerprint")
	}
	c := a
	onlyActive := true
	c.OnlyActiveArchitecture = &onlyActive
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("expected ONLY_ACTIVE_ARCH to change the fingerprint")
	}
}

// writeFakeTool writes a shell script standing in for xcodebuild.
func writeFakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "xcodebuild")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func TestLocalRunnerSuccess(t *testing.T) {
	tool := writeFakeTool(t, `echo "args: $*"`)

	out, err := NewLocalRunner().Run(context.Background(), Command{Tool: tool, Actions: []Action{ActionBuild}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "args: build" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestLocalRunnerExitCode(t *testing.T) {
	tool := writeFakeTool(t, `echo "xcodebuild: error: no scheme" >&2; exit 65`)

	_, err := NewLocalRunner().Run(context.Background(), Command{Tool: tool})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskError, got %T (%v)", err, err)
	}
	if taskErr.ExitCode != 65 {
		t.Errorf("expected exit code 65, got %d", taskErr.ExitCode)
	}
	if !strings.Contains(taskErr.Stderr, "no scheme") {
		t.Errorf("expected stderr tail, got %q", taskErr.Stderr)
	}
	if !strings.Contains(taskErr.Error(), "exited with code 65") {
		t.Errorf("unexpected message %q", taskErr.Error())
	}
}

func TestLocalRunnerMissingTool(t *testing.T) {
	_, err := NewLocalRunner().Run(context.Background(), Command{Tool: filepath.Join(t.TempDir(), "missing")})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskError, got %T", err)
	}
	if taskErr.ExitCode != 0 {
		t.Errorf("expected no exit code for a tool that never started, got %d", taskErr.ExitCode)
	}
}

func TestLocalRunnerDeadline(t *testing.T) {
	tool := writeFakeTool(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewLocalRunner().Run(ctx, Command{Tool: tool})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLocalRunnerDeadlineWithBackgroundChild(t *testing.T) {
	tool := writeFakeTool(t, "sleep 10 &\nsleep 10")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	runner := &LocalRunner{WaitDelay: 200 * time.Millisecond}
	start := time.Now()
	_, err := runner.Run(ctx, Command{Tool: tool})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("expected Run to return once the wait delay passed, took %v", elapsed)
	}
}

type mockExecutor struct {
	mu     sync.Mutex
	calls  [][]string
	stdout []byte
	stderr []byte
	err    error
}

func (m *mockExecutor) Run(ctx context.Context, argv []string) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, argv)
	return m.stdout, m.stderr, m.err
}

func TestRemoteRunner(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		exec := &mockExecutor{stdout: []byte("ok")}
		out, err := NewRemoteRunner(exec).Run(context.Background(), Command{Actions: []Action{ActionBuild}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(out) != "ok" {
			t.Errorf("expected ok, got %q", out)
		}
		if diff := cmp.Diff([][]string{{"xcodebuild", "build"}}, exec.calls); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("exit status", func(t *testing.T) {
		exec := &mockExecutor{
			stderr: []byte("boom"),
			err:    &ssh.TransportError{Op: "run", Err: fmt.Errorf("command exited with code 70"), ExitCode: 70},
		}
		_, err := NewRemoteRunner(exec).Run(context.Background(), Command{})
		var taskErr *TaskError
		if !errors.As(err, &taskErr) {
			t.Fatalf("expected *TaskError, got %T", err)
		}
		if taskErr.ExitCode != 70 || taskErr.Stderr != "boom" {
			t.Errorf("unexpected task error %+v", taskErr)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		exec := &mockExecutor{err: context.Canceled}
		_, err := NewRemoteRunner(exec).Run(ctx, Command{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
