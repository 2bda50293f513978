package buildsettings

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/xcsettings/xcsettings/pkg/telemetry"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// Policy controls how xcodebuild is invoked for settings.
type Policy struct {
	// Timeout bounds each attempt. Zero disables the bound.
	Timeout time.Duration

	// Retries is the number of extra attempts after the first fails.
	Retries int

	// WorkaroundAction is the action passed to xcodebuild regardless of
	// the action the caller asks about, since plain -showBuildSettings
	// hangs on some projects. ActionNone passes no action.
	WorkaroundAction xcodebuild.Action
}

// DefaultPolicy returns a 60 second timeout, 5 retries and the archive
// workaround action.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:          60 * time.Second,
		Retries:          5,
		WorkaroundAction: xcodebuild.ActionArchive,
	}
}

// Retriever runs xcodebuild and parses its settings output.
// It holds no mutable state and is safe for concurrent use.
type Retriever struct {
	runner  xcodebuild.Runner
	policy  Policy
	tool    string
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(r *Retriever) { r.policy = p }
}

// WithTool sets the xcodebuild executable path.
func WithTool(path string) Option {
	return func(r *Retriever) { r.tool = path }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Retriever) { r.tracer = t }
}

// NewRetriever creates a retriever that invokes xcodebuild through runner.
func NewRetriever(runner xcodebuild.Runner, opts ...Option) *Retriever {
	r := &Retriever{
		runner: runner,
		policy: DefaultPolicy(),
		logger: zerolog.Nop(),
		tracer: telemetry.NopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retriever's invocation policy.
func (r *Retriever) Policy() Policy {
	return r.policy
}

// Command returns the xcodebuild command used to read settings for args.
func (r *Retriever) Command(args xcodebuild.Arguments) xcodebuild.Command {
	return xcodebuild.Command{
		Tool:      r.tool,
		Actions:   []xcodebuild.Action{r.policy.WorkaroundAction},
		Flags:     []string{"-showBuildSettings", "-skipUnavailableActions"},
		Arguments: args,
	}
}

// Load yields the settings of every target xcodebuild reports for args.
// Each value is stamped with action, which is never passed to xcodebuild.
// The whole output is checked to be UTF-8 before any target is yielded. On
// failure a single error is yielded with a nil value. Breaking out of
// the loop stops parsing.
func (r *Retriever) Load(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action) iter.Seq2[*BuildSettings, error] {
	return func(yield func(*BuildSettings, error) bool) {
		ctx, span := r.tracer.StartLoadSpan(ctx, args.Project.Path, args.Scheme)
		defer span.End()

		output, err := r.run(ctx, args)
		if err != nil {
			r.fail(span, err)
			yield(nil, err)
			return
		}
		if !utf8.Valid(output) {
			err := undecodableOutputError(args.Project)
			r.fail(span, err)
			yield(nil, err)
			return
		}

		targets := 0
		defer func() { span.SetAttributes(telemetry.AttrTargets.Int(targets)) }()

		for settings, err := range Parse(bytes.NewReader(output), args, action) {
			if err != nil {
				r.fail(span, err)
				yield(nil, err)
				return
			}
			targets++
			r.metrics.RecordTargetParsed()
			if !yield(settings, nil) {
				r.logger.Debug().Int("targets", targets).Msg("settings consumer stopped early")
				r.metrics.RecordRetrieval("success")
				return
			}
		}

		r.metrics.RecordRetrieval("success")
		telemetry.RecordSuccess(span)
	}
}

// LoadAll collects every target's settings.
func (r *Retriever) LoadAll(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action) ([]*BuildSettings, error) {
	var all []*BuildSettings
	for settings, err := range r.Load(ctx, args, action) {
		if err != nil {
			return nil, err
		}
		all = append(all, settings)
	}
	return all, nil
}

// SDKsForScheme returns the SDKs of the first target the scheme builds.
// It returns an empty list when the scheme reports no targets.
func (r *Retriever) SDKsForScheme(ctx context.Context, project xcodebuild.ProjectLocator, scheme string) ([]SDK, error) {
	args := xcodebuild.Arguments{Project: project, Scheme: scheme}
	for settings, err := range r.Load(ctx, args, xcodebuild.ActionNone) {
		if err != nil {
			return nil, err
		}
		return settings.SDKs()
	}
	return []SDK{}, nil
}

// run invokes xcodebuild until an attempt succeeds, retries are exhausted
// or ctx is done.
func (r *Retriever) run(ctx context.Context, args xcodebuild.Arguments) ([]byte, error) {
	cmd := r.Command(args)
	logger := r.logger.With().Str("project", args.Project.Path).Str("scheme", args.Scheme).Logger()

	retries := max(r.policy.Retries, 0)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			r.metrics.RecordRetry()
			logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying xcodebuild")
		}

		output, err := r.attempt(ctx, cmd, attempt+1)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Debug().Err(ctxErr).Msg("retrieval cancelled")
			return nil, ctxErr
		}
		if !IsRetryable(err) {
			return nil, err
		}
	}

	logger.Error().Err(lastErr).Int("attempts", retries+1).Msg("xcodebuild failed on every attempt")
	return nil, lastErr
}

// attempt performs one invocation under its own deadline.
func (r *Retriever) attempt(ctx context.Context, cmd xcodebuild.Command, n int) ([]byte, error) {
	ctx, span := r.tracer.StartAttemptSpan(ctx, n)
	defer span.End()

	execCtx := ctx
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Debug().Str("command", cmd.String()).Int("attempt", n).Msg("running xcodebuild")
	output, err := r.runner.Run(execCtx, cmd)
	duration := time.Since(start)

	switch {
	case err == nil:
		r.metrics.RecordAttempt("success", duration)
		telemetry.RecordSuccess(span)
		return output, nil
	case ctx.Err() != nil:
		r.metrics.RecordAttempt("cancelled", duration)
		telemetry.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		r.metrics.RecordAttempt("timeout", duration)
		timeoutErr := toolTimeoutError(cmd.Arguments.Project, err)
		telemetry.RecordError(span, timeoutErr)
		return nil, timeoutErr
	default:
		r.metrics.RecordAttempt("failed", duration)
		failedErr := taskFailedError(cmd.Arguments.Project, err)
		telemetry.RecordError(span, failedErr)
		return nil, failedErr
	}
}

// fail records a retrieval that ends in err.
func (r *Retriever) fail(span trace.Span, err error) {
	telemetry.RecordError(span, err)
	r.metrics.RecordRetrieval("error")

	var e *Error
	if errors.As(err, &e) {
		r.metrics.RecordError(string(e.Class), e.Code)
		span.SetAttributes(telemetry.AttrErrorCode.String(e.Code))
	}
}
