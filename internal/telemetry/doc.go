// Package telemetry forwards execution traces to external systems.
//
// SpanBridge turns the event stream of a run into OpenTelemetry spans: one
// root span per run and one child span per node execution. NATSPublisher
// publishes each event as a JSON message on a per-kind subject.
//
// Both are plain trace subscribers. They observe a run and never influence
// it; export failures are logged, not returned to the scheduler.
package telemetry
