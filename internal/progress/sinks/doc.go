// Package sinks provides progress.Sink implementations for logs and terminals.
package sinks
