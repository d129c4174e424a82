// Package observability provides the event log, the metrics monitor with its
// alerting and health checks, and the sinks those write to. Events are
// decorated with session context and dispatched either immediately or through
// a bounded buffer; metrics are rolled up over the trailing hour.
package observability
