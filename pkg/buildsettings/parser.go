package buildsettings

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// maxLineSize bounds a single output line. Search path settings in large
// workspaces run to hundreds of kilobytes.
const maxLineSize = 16 << 20

// targetHeader matches the line that opens a target's settings block.
var targetHeader = regexp.MustCompile(`(?i)^Build settings for action (\S+) and target "?([^"]+)"?:$`)

// accumulator collects the settings of one target block at a time. It is
// either idle (no target seen yet) or accumulating a named target.
type accumulator struct {
	args   xcodebuild.Arguments
	action xcodebuild.Action

	accumulating bool
	target       string
	settings     map[string]string
}

// begin flushes the current block and starts a new one for target.
func (a *accumulator) begin(target string) *BuildSettings {
	done := a.flush()
	a.accumulating = true
	a.target = target
	a.settings = make(map[string]string)
	return done
}

// add records a "KEY = value" line. Lines without '=', with an empty key or
// with nothing at all after the '=' are ignored, as is anything before the
// first block header. "KEY= " records an empty value.
func (a *accumulator) add(line string) {
	if !a.accumulating {
		return
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok || value == "" {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	a.settings[key] = strings.TrimSpace(value)
}

// flush emits the current block and returns to idle. It returns nil when
// idle.
func (a *accumulator) flush() *BuildSettings {
	if !a.accumulating {
		return nil
	}
	done := &BuildSettings{
		Target:    a.target,
		Arguments: a.args,
		Action:    a.action,
		settings:  a.settings,
	}
	a.accumulating = false
	a.target = ""
	a.settings = nil
	return done
}

// Parse reads `xcodebuild -showBuildSettings` output from r and yields one
// BuildSettings per target block, stamped with args and action. Iteration
// stops at the first read error or non-UTF-8 line, which is yielded with a
// nil value. Breaking out of the loop stops reading.
func Parse(r io.Reader, args xcodebuild.Arguments, action xcodebuild.Action) iter.Seq2[*BuildSettings, error] {
	return func(yield func(*BuildSettings, error) bool) {
		acc := &accumulator{args: args, action: action}

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			raw := scanner.Bytes()
			if !utf8.Valid(raw) {
				yield(nil, undecodableOutputError(args.Project))
				return
			}

			line := strings.TrimSuffix(string(raw), "\r")
			if m := targetHeader.FindStringSubmatch(strings.TrimRight(line, " \t")); m != nil {
				if done := acc.begin(m[2]); done != nil {
					if !yield(done, nil) {
						return
					}
				}
				continue
			}
			acc.add(line)
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read build settings: %w", err))
			return
		}

		if done := acc.flush(); done != nil {
			yield(done, nil)
		}
	}
}

// ParseString parses output held in memory.
func ParseString(output string, args xcodebuild.Arguments, action xcodebuild.Action) iter.Seq2[*BuildSettings, error] {
	return Parse(strings.NewReader(output), args, action)
}

// ParseAll collects every target from output.
func ParseAll(output []byte, args xcodebuild.Arguments, action xcodebuild.Action) ([]*BuildSettings, error) {
	var all []*BuildSettings
	for settings, err := range Parse(bytes.NewReader(output), args, action) {
		if err != nil {
			return nil, err
		}
		all = append(all, settings)
	}
	return all, nil
}
