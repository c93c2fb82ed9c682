package schedule

import "time"

const (
	ConsultationInPerson = "in_person"
	ConsultationVirtual  = "virtual"
	ConsultationBoth     = "both"
)

// Window is a recurring weekly availability rule for one provider.
// Times are minute-of-day offsets (0-1439); dates bound the weeks the
// rule applies to. Deactivation is a soft delete so history stays
// queryable for audit.
type Window struct {
	ID                 string
	HospitalID         string
	ProviderID         string
	LocationID         *string
	DayOfWeek          int // 0=Sunday .. 6=Saturday, matches time.Weekday
	StartMinute        int
	EndMinute          int
	SlotDurationMins   int
	MaxPatientsPerSlot int
	ConsultationType   string
	BreakStartMinute   *int
	BreakEndMinute     *int
	ConsultationFee    string
	Currency           string
	EffectiveFrom      time.Time
	EffectiveTo        *time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Patch carries the mutable fields of an update request. Nil means
// "leave unchanged"; LocationID/Break*/EffectiveTo use double pointers
// so callers can distinguish "unchanged" from "clear".
type Patch struct {
	LocationID         **string
	DayOfWeek          *int
	StartMinute        *int
	EndMinute          *int
	SlotDurationMins   *int
	MaxPatientsPerSlot *int
	ConsultationType   *string
	BreakStartMinute   **int
	BreakEndMinute     **int
	ConsultationFee    *string
	Currency           *string
	EffectiveFrom      *time.Time
	EffectiveTo        **time.Time
}

// Apply merges the patch over an existing window and returns the result.
func (p Patch) Apply(w Window) Window {
	if p.LocationID != nil {
		w.LocationID = *p.LocationID
	}
	if p.DayOfWeek != nil {
		w.DayOfWeek = *p.DayOfWeek
	}
	if p.StartMinute != nil {
		w.StartMinute = *p.StartMinute
	}
	if p.EndMinute != nil {
		w.EndMinute = *p.EndMinute
	}
	if p.SlotDurationMins != nil {
		w.SlotDurationMins = *p.SlotDurationMins
	}
	if p.MaxPatientsPerSlot != nil {
		w.MaxPatientsPerSlot = *p.MaxPatientsPerSlot
	}
	if p.ConsultationType != nil {
		w.ConsultationType = *p.ConsultationType
	}
	if p.BreakStartMinute != nil {
		w.BreakStartMinute = *p.BreakStartMinute
	}
	if p.BreakEndMinute != nil {
		w.BreakEndMinute = *p.BreakEndMinute
	}
	if p.ConsultationFee != nil {
		w.ConsultationFee = *p.ConsultationFee
	}
	if p.Currency != nil {
		w.Currency = *p.Currency
	}
	if p.EffectiveFrom != nil {
		w.EffectiveFrom = *p.EffectiveFrom
	}
	if p.EffectiveTo != nil {
		w.EffectiveTo = *p.EffectiveTo
	}
	return w
}

// Overlaps reports whether two windows share an instant under
// inclusive-start/exclusive-end semantics. Callers are expected to have
// already matched provider, location, and day of week.
func Overlaps(a, b Window) bool {
	return a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute
}

// SameLocation reports whether two windows compete for the provider's
// time. A location-agnostic (nil) window matches every location: the
// provider cannot be in two places at once, so it conflicts with any
// located window and vice versa.
func SameLocation(a, b Window) bool {
	if a.LocationID == nil || b.LocationID == nil {
		return true
	}
	return *a.LocationID == *b.LocationID
}

// FindConflict returns an OverlapError naming the first window in
// others that w would overlap. Callers filter others to the same
// provider and day of week; a window never conflicts with itself.
func FindConflict(w Window, others []Window) error {
	for _, other := range others {
		if other.ID != "" && other.ID == w.ID {
			continue
		}
		if SameLocation(w, other) && Overlaps(w, other) {
			return &OverlapError{ConflictingWindowID: other.ID}
		}
	}
	return nil
}
