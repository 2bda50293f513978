package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
)

// DefaultTimeout bounds one evaluation when none is configured.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when a program runs past the evaluator timeout.
var ErrTimeout = errors.New("starlark execution timeout")

// Result is the outcome of running a program against one target.
type Result struct {
	// Target is the target the program saw.
	Target string `json:"target"`

	// Output holds the program's globals, excluding names starting with "_".
	Output map[string]any `json:"output"`

	// Printed collects print() calls in order.
	Printed []string `json:"printed,omitempty"`

	ExecutionTime time.Duration `json:"execution_time"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
}

// Evaluator runs Starlark programs over build settings.
type Evaluator struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEvaluator creates an evaluator. A zero timeout means DefaultTimeout.
func NewEvaluator(timeout time.Duration, logger zerolog.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{
		timeout: timeout,
		logger:  logger,
	}
}

// EvaluateAll runs program once per target and stops at the first failure.
func (e *Evaluator) EvaluateAll(ctx context.Context, filename, program string, all []*buildsettings.BuildSettings) ([]*Result, error) {
	results := make([]*Result, 0, len(all))
	for _, settings := range all {
		result, err := e.Evaluate(ctx, filename, program, settings)
		results = append(results, result)
		if err != nil {
			return results, fmt.Errorf("target %s: %w", settings.Target, err)
		}
	}
	return results, nil
}

// Evaluate runs program with settings, target and action predeclared along
// with the lookup, has and query builtins.
func (e *Evaluator) Evaluate(ctx context.Context, filename, program string, settings *buildsettings.BuildSettings) (*Result, error) {
	startTime := time.Now()
	result := &Result{Target: settings.Target}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "xcsettings:" + settings.Target,
		Print: func(_ *starlark.Thread, msg string) {
			result.Printed = append(result.Printed, msg)
		},
	}

	done := make(chan error, 1)
	go func() {
		output, err := execute(thread, filename, program, settings)
		result.Output = output
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		<-done
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
		} else {
			err = ctx.Err()
		}
		result.Output = nil
	}

	result.ExecutionTime = time.Since(startTime)
	if err != nil {
		result.Error = err.Error()
		e.logger.Debug().Err(err).Str("target", settings.Target).Msg("script failed")
		return result, err
	}

	e.logger.Debug().
		Str("target", settings.Target).
		Dur("duration", result.ExecutionTime).
		Int("globals", len(result.Output)).
		Msg("script evaluated")
	return result, nil
}

func execute(thread *starlark.Thread, filename, program string, settings *buildsettings.BuildSettings) (map[string]any, error) {
	predeclared, err := predeclare(settings)
	if err != nil {
		return nil, err
	}

	globals, err := starlark.ExecFile(thread, filename, program, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]any)
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		// Functions defined by the program are not results.
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}
	return output, nil
}

func predeclare(settings *buildsettings.BuildSettings) (starlark.StringDict, error) {
	dict := starlark.NewDict(settings.Len())
	for _, key := range settings.Keys() {
		value, _ := settings.Lookup(key)
		if err := dict.SetKey(starlark.String(key), starlark.String(value)); err != nil {
			return nil, err
		}
	}
	dict.Freeze()

	return starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"settings": dict,
		"target":   starlark.String(settings.Target),
		"action":   starlark.String(settings.Action.String()),
		"scheme":   starlark.String(settings.Arguments.Scheme),
		"lookup":   starlark.NewBuiltin("lookup", lookupBuiltin(settings)),
		"has":      starlark.NewBuiltin("has", hasBuiltin(settings)),
		"query":    starlark.NewBuiltin("query", queryBuiltin(settings)),
	}, nil
}

// lookupBuiltin implements lookup(key, default=None). Without a default a
// missing key fails the program.
func lookupBuiltin(settings *buildsettings.BuildSettings) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key string
		var fallback starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &fallback); err != nil {
			return nil, err
		}
		value, err := settings.Lookup(key)
		if err != nil {
			if fallback != nil && buildsettings.IsMissingSetting(err) {
				return fallback, nil
			}
			return nil, err
		}
		return starlark.String(value), nil
	}
}

func hasBuiltin(settings *buildsettings.BuildSettings) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
			return nil, err
		}
		return starlark.Bool(settings.Has(key)), nil
	}
}

// queryBuiltin implements query(name) over the named derived queries.
func queryBuiltin(settings *buildsettings.BuildSettings) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		value, err := settings.Query(name)
		if err != nil {
			return nil, err
		}
		return toStarlarkValue(value)
	}
}
