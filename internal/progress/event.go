package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageTaskStart  Stage = "TASK_START"
	StageTaskDone   Stage = "TASK_DONE"
	StageBatchDone  Stage = "BATCH_DONE"
)

// Event captures a single scan milestone.
type Event struct {
	// BatchID groups the events of one Scan call.
	BatchID uuid.UUID
	TS      time.Time
	Stage   Stage
	// Identifier is set on task events.
	Identifier string
	// State is the terminal task state on TASK_DONE.
	State string
	// Links counts links found by a task, or cached entries written on BATCH_DONE.
	Links int
	// Done and Total track batch completion. Total counts scraped
	// identifiers only; cache hits are reported in Hits.
	Done  int
	Total int
	Hits  int
	Dur   time.Duration
	// Note carries a failure reason or other low-volume context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == uuid.Nil {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageTaskStart, StageTaskDone:
		if e.Identifier == "" {
			return fmt.Errorf("%s requires an identifier", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// NewBatchID returns a time-ordered UUIDv7 so batch ids sort by start time.
func NewBatchID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
