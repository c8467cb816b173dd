// Package progress carries build lifecycle events from the tracker to
// pluggable sinks. Events are batched on a background goroutine so that the
// host bundler never waits on logging, metrics, or notification delivery.
package progress
