// Package sinks implements concrete progress consumers: structured logging,
// Prometheus metrics, and build-finished notifications. Each sink satisfies
// progress.Sink.
package sinks
