package schedule

import (
	"fmt"

	"github.com/careslot/careslot/libs/timex"
)

// Validate checks a window's field invariants. It does not look at other
// windows; overlap is the store's job.
func Validate(w Window) error {
	if w.ProviderID == "" {
		return &InvalidWindowError{Reason: "provider_id is required"}
	}
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return &InvalidWindowError{Reason: "day_of_week must be between 0 and 6"}
	}
	if w.StartMinute < 0 || w.EndMinute > timex.MinutesPerDay {
		return &InvalidWindowError{Reason: "start/end must fall within a single day"}
	}
	if w.StartMinute >= w.EndMinute {
		return &InvalidWindowError{Reason: "start_time must be before end_time"}
	}
	if w.SlotDurationMins <= 0 {
		return &InvalidWindowError{Reason: "slot_duration_minutes must be positive"}
	}
	if w.MaxPatientsPerSlot <= 0 {
		return &InvalidWindowError{Reason: "max_patients_per_slot must be positive"}
	}
	switch w.ConsultationType {
	case ConsultationInPerson, ConsultationVirtual, ConsultationBoth:
	default:
		return &InvalidWindowError{Reason: fmt.Sprintf("unknown consultation_type %q", w.ConsultationType)}
	}
	if (w.BreakStartMinute == nil) != (w.BreakEndMinute == nil) {
		return &InvalidWindowError{Reason: "break_start and break_end must be set together"}
	}
	if w.BreakStartMinute != nil {
		bs, be := *w.BreakStartMinute, *w.BreakEndMinute
		if bs >= be {
			return &InvalidWindowError{Reason: "break_start must be before break_end"}
		}
		if bs < w.StartMinute || be > w.EndMinute {
			return &InvalidWindowError{Reason: "break must fall within the window"}
		}
	}
	if w.EffectiveFrom.IsZero() {
		return &InvalidWindowError{Reason: "effective_from is required"}
	}
	if w.EffectiveTo != nil && w.EffectiveTo.Before(w.EffectiveFrom) {
		return &InvalidWindowError{Reason: "effective_to must not precede effective_from"}
	}
	return nil
}
