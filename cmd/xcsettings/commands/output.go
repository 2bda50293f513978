package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatValue renders a query result on one line.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case []string:
		return strings.Join(val, " ")
	default:
		return fmt.Sprint(val)
	}
}

// settingsJSON is the JSON form of one target's settings.
type settingsJSON struct {
	Target   string            `json:"target"`
	Action   string            `json:"action"`
	Scheme   string            `json:"scheme,omitempty"`
	Project  string            `json:"project"`
	Settings map[string]string `json:"settings"`
}

func toSettingsJSON(b *buildsettings.BuildSettings) settingsJSON {
	return settingsJSON{
		Target:   b.Target,
		Action:   b.Action.String(),
		Scheme:   b.Arguments.Scheme,
		Project:  b.Arguments.Project.Path,
		Settings: b.Settings(),
	}
}

// targetValue is one per-target answer of get and query.
type targetValue struct {
	Target string `json:"target"`
	Value  any    `json:"value"`
	Error  string `json:"error,omitempty"`

	err error
}

func newTargetValue(target string, value any, err error) targetValue {
	if err != nil {
		return targetValue{Target: target, Error: err.Error(), err: err}
	}
	return targetValue{Target: target, Value: value}
}

// writeTargetValues prints bare values for a single target and
// "Target: value" lines otherwise. Failed targets are printed as errors and
// returned joined once everything is written.
func (a *app) writeTargetValues(w io.Writer, values []targetValue) error {
	var errs []error
	for _, tv := range values {
		if tv.err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", tv.Target, tv.err))
		}
	}

	if a.jsonOutput {
		if err := writeJSON(w, values); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	for _, tv := range values {
		var err error
		switch {
		case tv.err != nil && len(values) == 1:
		case tv.err != nil:
			_, err = fmt.Fprintf(w, "%s: error: %s\n", tv.Target, tv.Error)
		case len(values) == 1:
			_, err = fmt.Fprintln(w, formatValue(tv.Value))
		default:
			_, err = fmt.Fprintf(w, "%s: %s\n", tv.Target, formatValue(tv.Value))
		}
		if err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}
