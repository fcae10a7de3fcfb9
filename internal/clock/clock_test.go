package clock

import (
	"testing"
	"time"
)

// TestSystemNowUTC ensures the system clock returns UTC timestamps.
func TestSystemNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := System{}.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestManualAdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	m := NewManual(start)
	if !m.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, m.Now())
	}
	m.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !m.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, m.Now())
	}
	m.Set(start)
	if !m.Now().Equal(start) {
		t.Fatalf("expected reset to %v, got %v", start, m.Now())
	}
}
