// Package telemetry provides observability for xcsettings.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus). Components receive a zerolog.Logger, a *Tracer and
// a *Metrics; all three have no-op forms so tests and library users can
// pass them without configuring anything.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	retriever := buildsettings.NewRetriever(runner,
//	    buildsettings.WithLogger(tel.Logger.NewComponentLogger("retriever")),
//	    buildsettings.WithMetrics(tel.Metrics),
//	    buildsettings.WithTracer(tel.Tracer),
//	)
//
// # Spans
//
// A retrieval produces one "buildsettings.load" span with one child
// "xcodebuild.attempt" span per invocation.
//
// # Metrics
//
// Counters cover xcodebuild attempts and retries, retrieval outcomes,
// parsed targets, cache hits and misses, invalidations, policy violations
// and errors by code. Attempt duration is a histogram. The watch command
// serves them over HTTP through StartMetricsServer.
package telemetry
