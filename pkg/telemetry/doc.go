// Package telemetry provides observability for the relay gateway.
//
// # Components
//
//   - logging: structured slog output with credential redaction
//   - metrics: Prometheus metrics collection and the scrape handler
//
// Every API key loaded into the pool registers with the logging redactor,
// so credentials are masked in all log output regardless of which
// component logged them.
package telemetry
