package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrWindowNotFound = errors.New("schedule window not found")
	ErrInvalidDate    = errors.New("invalid date")
)

// InvalidWindowError rejects a window whose fields violate the ordering
// or nesting invariants. Detected before anything is written.
type InvalidWindowError struct {
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return "invalid schedule window: " + e.Reason
}

// OverlapError rejects a window that would overlap an existing active
// window for the same provider, location, and day of week.
type OverlapError struct {
	ConflictingWindowID string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("schedule window overlaps active window %s", e.ConflictingWindowID)
}
