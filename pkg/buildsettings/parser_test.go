package buildsettings

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

var testArgs = xcodebuild.Arguments{
	Project: xcodebuild.ProjectLocator{Kind: xcodebuild.ProjectKindWorkspace, Path: "/src/App/App.xcworkspace"},
	Scheme:  "App",
}

const sampleOutput = `Command line invocation:
    /Applications/Xcode.app/Contents/Developer/usr/bin/xcodebuild archive -showBuildSettings

Build settings for action archive and target "Kit":
    ACTION = archive
    BUILT_PRODUCTS_DIR = /tmp/Build/Products/Release-iphoneos
    OTHER_SWIFT_FLAGS = -D FEATURE=1
    PRODUCT_NAME = Kit

Build settings for action archive and target KitTests:
    PRODUCT_NAME = KitTests
`

func targets(t *testing.T, all []*BuildSettings) []string {
	t.Helper()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Target
	}
	return names
}

func TestParseTwoTargets(t *testing.T) {
	input := "Build settings for action build and target \"Foo\":\n" +
		"    BAR = baz\n" +
		"    EMPTY= \n" +
		"\n" +
		"Build settings for action build and target \"Qux\":\n"

	all, err := ParseAll([]byte(input), testArgs, xcodebuild.ActionBuild)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if diff := cmp.Diff([]string{"Foo", "Qux"}, targets(t, all)); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"BAR": "baz", "EMPTY": ""}, all[0].Settings()); diff != "" {
		t.Errorf("Foo settings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{}, all[1].Settings()); diff != "" {
		t.Errorf("Qux settings mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStampsArgumentsAndAction(t *testing.T) {
	all, err := ParseAll([]byte(sampleOutput), testArgs, xcodebuild.ActionTest)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	for _, s := range all {
		if s.Action != xcodebuild.ActionTest {
			t.Errorf("%s: expected action test, got %v", s.Target, s.Action)
		}
		if s.Arguments.Scheme != "App" {
			t.Errorf("%s: expected scheme App, got %q", s.Target, s.Arguments.Scheme)
		}
	}
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []map[string]string
	}{
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "settings before any header are ignored",
			input: "ORPHAN = 1\nBuild settings for action build and target A:\n  X = 1\n",
			want:  []map[string]string{{"X": "1"}},
		},
		{
			name:  "value containing equals",
			input: "Build settings for action build and target A:\n  OTHER_LDFLAGS = -Wl,-rpath=@loader_path\n",
			want:  []map[string]string{{"OTHER_LDFLAGS": "-Wl,-rpath=@loader_path"}},
		},
		{
			name:  "duplicate key keeps last",
			input: "Build settings for action build and target A:\n  X = 1\n  X = 2\n",
			want:  []map[string]string{{"X": "2"}},
		},
		{
			name:  "lines without equals and empty keys are ignored",
			input: "Build settings for action build and target A:\n  note\n  = orphan\n  Y = y\n",
			want:  []map[string]string{{"Y": "y"}},
		},
		{
			name:  "nothing after equals is ignored",
			input: "Build settings for action build and target A:\n  BARE=\n  SPACED= \n  TABBED =\t\n",
			want:  []map[string]string{{"SPACED": "", "TABBED": ""}},
		},
		{
			name:  "CRLF and trailing whitespace",
			input: "Build settings for action build and target \"A\":  \r\n  X = 1\r\n",
			want:  []map[string]string{{"X": "1"}},
		},
		{
			name:  "header is case insensitive",
			input: "BUILD SETTINGS FOR ACTION build AND TARGET A:\n  X = 1\n",
			want:  []map[string]string{{"X": "1"}},
		},
		{
			name:  "duplicate target names each emit",
			input: "Build settings for action build and target A:\n  X = 1\nBuild settings for action build and target A:\n  X = 2\n",
			want:  []map[string]string{{"X": "1"}, {"X": "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all, err := ParseAll([]byte(tt.input), testArgs, xcodebuild.ActionNone)
			if err != nil {
				t.Fatalf("failed to parse: %v", err)
			}
			var got []map[string]string
			for _, s := range all {
				got = append(got, s.Settings())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseTargetNames(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`Build settings for action build and target "Foo":`, "Foo"},
		{`Build settings for action build and target Foo:`, "Foo"},
		{`Build settings for action build and target "My App":`, "My App"},
		{`Build settings for action archive and target Kit-iOS:`, "Kit-iOS"},
	}

	for _, tt := range tests {
		all, err := ParseAll([]byte(tt.header+"\n"), testArgs, xcodebuild.ActionNone)
		if err != nil {
			t.Fatalf("failed to parse %q: %v", tt.header, err)
		}
		if len(all) != 1 || all[0].Target != tt.want {
			t.Errorf("header %q: expected target %q, got %v", tt.header, tt.want, targets(t, all))
		}
	}
}

func TestParseCountsEveryHeader(t *testing.T) {
	var b strings.Builder
	for i := range 25 {
		b.WriteString("Build settings for action build and target T:\n")
		if i%3 == 0 {
			b.WriteString("  K = v\n")
		}
	}

	all, err := ParseAll([]byte(b.String()), testArgs, xcodebuild.ActionNone)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(all) != 25 {
		t.Errorf("expected 25 targets, got %d", len(all))
	}
}

func TestParseIsIdempotent(t *testing.T) {
	first, err := ParseAll([]byte(sampleOutput), testArgs, xcodebuild.ActionArchive)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	second, err := ParseAll([]byte(sampleOutput), testArgs, xcodebuild.ActionArchive)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected equal lengths, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("target %d differs: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestParseStopsEarly(t *testing.T) {
	reader := &countingReader{r: strings.NewReader(sampleOutput + strings.Repeat("  PAD = x\n", 100000))}

	var seen []string
	for settings, err := range Parse(iotest.OneByteReader(reader), testArgs, xcodebuild.ActionNone) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen = append(seen, settings.Target)
		break
	}

	if diff := cmp.Diff([]string{"Kit"}, seen); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	if reader.n >= len(sampleOutput) {
		t.Errorf("expected parsing to stop before the end of the second block, read %d bytes", reader.n)
	}
}

func TestParseUndecodableOutput(t *testing.T) {
	input := "Build settings for action build and target A:\n  X = \xff\xfe\n"

	_, err := ParseAll([]byte(input), testArgs, xcodebuild.ActionNone)
	if !errors.Is(err, ErrUndecodableOutput) {
		t.Fatalf("expected undecodable output error, got %v", err)
	}

	var e *Error
	if !errors.As(err, &e) || e.Class != ErrorClassInternal {
		t.Errorf("expected internal class, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("undecodable output must not be retryable")
	}
}

func TestParseReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("Build settings for action build and target A:\n"), iotest.ErrReader(errors.New("disk gone")))

	var sawErr error
	for _, err := range Parse(r, testArgs, xcodebuild.ActionNone) {
		if err != nil {
			sawErr = err
		}
	}
	if sawErr == nil || !strings.Contains(sawErr.Error(), "disk gone") {
		t.Errorf("expected read error, got %v", sawErr)
	}
}

func TestParseStringMatchesParseAll(t *testing.T) {
	var fromString []*BuildSettings
	for s, err := range ParseString(sampleOutput, testArgs, xcodebuild.ActionNone) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fromString = append(fromString, s)
	}
	all, _ := ParseAll([]byte(sampleOutput), testArgs, xcodebuild.ActionNone)
	if diff := cmp.Diff(targets(t, all), targets(t, fromString)); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
