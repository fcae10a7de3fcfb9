// Package progress carries scan lifecycle events from the orchestrator to
// pluggable sinks. Emit never blocks; a background goroutine batches events
// and fans them out, so a slow sink cannot stall the worker pool.
package progress
