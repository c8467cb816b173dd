// Package estimator turns a stream of bundler lifecycle events into a
// monotonically non-decreasing completion estimate in [0,1].
//
// Two strategies exist and one is chosen when the Estimator is built:
//
//   - Cold mode has no history. It counts the project's own source files up
//     front and treats each source file as roughly two transform events,
//     ignoring modules that resolve into a dependency directory. The direct
//     estimate is capped at 25%; past that point the displayed value creeps
//     forward in small fixed steps so the bar keeps moving through the rest of
//     the build without claiming completion.
//   - Warm mode divides the number of events seen so far by the transform and
//     chunk totals of the previous successful build.
//
// The Estimator does no I/O and is not safe for concurrent use; the tracker
// package serializes access.
package estimator
