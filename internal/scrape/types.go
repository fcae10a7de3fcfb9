// Package scrape fetches profile pages through a bounded pool of isolated
// sessions and merges the discovered invite links with the cache.
package scrape

import (
	"errors"
	"time"
)

// Task failure reasons. None of them is fatal to a batch.
var (
	ErrSessionCreate     = errors.New("session create failed")
	ErrNavigationTimeout = errors.New("page load timed out")
	ErrExtraction        = errors.New("extraction failed")
	ErrTaskTimeout       = errors.New("task timed out")
	ErrAbandoned         = errors.New("task abandoned")
)

// State is the lifecycle position of a task.
type State int

// Task states. Completed, Failed and Abandoned are terminal.
const (
	StatePending State = iota
	StateAcquiring
	StateAcquired
	StateAcquireFailed
	StateExtracting
	StateCompleted
	StateFailed
	StateAbandoned
)

var stateNames = map[State]string{
	StatePending:       "pending",
	StateAcquiring:     "acquiring",
	StateAcquired:      "acquired",
	StateAcquireFailed: "acquire_failed",
	StateExtracting:    "extracting",
	StateCompleted:     "completed",
	StateFailed:        "failed",
	StateAbandoned:     "abandoned",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Task is one identifier to scrape. It is immutable once submitted.
type Task struct {
	Identifier string
	URL        string
}

// Result is the single terminal outcome of a task.
type Result struct {
	Identifier string
	Links      []string
	State      State
	// Err is the failure or degradation reason, nil for a clean scrape.
	Err error
	// Duration is the wall time the task held a pool slot.
	Duration time.Duration
}

// Reason returns the human readable failure reason, or "" for a clean scrape.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Cacheable reports whether the result may be written to the cache.
func (r Result) Cacheable() bool {
	return r.State == StateCompleted || r.State == StateFailed
}

// clean reports whether the scrape itself reached the page and extracted.
// A page load timeout still counts since extraction continued.
func (r Result) clean() bool {
	return r.State == StateCompleted && (r.Err == nil || errors.Is(r.Err, ErrNavigationTimeout))
}

func completedEmpty(task Task, err error) Result {
	return Result{Identifier: task.Identifier, Links: []string{}, State: StateCompleted, Err: err}
}

func abandoned(task Task, cause error) Result {
	return Result{
		Identifier: task.Identifier,
		Links:      []string{},
		State:      StateAbandoned,
		Err:        errors.Join(ErrAbandoned, cause),
	}
}
