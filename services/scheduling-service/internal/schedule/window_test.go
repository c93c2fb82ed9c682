package schedule

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func validWindow() Window {
	return Window{
		ID:                 "w1",
		HospitalID:         "h1",
		ProviderID:         "p1",
		DayOfWeek:          1,
		StartMinute:        540,
		EndMinute:          720,
		SlotDurationMins:   30,
		MaxPatientsPerSlot: 1,
		ConsultationType:   ConsultationInPerson,
		ConsultationFee:    "50.00",
		Currency:           "USD",
		EffectiveFrom:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:           true,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validWindow()); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	w := validWindow()
	w.BreakStartMinute = intPtr(630)
	w.BreakEndMinute = intPtr(660)
	if err := Validate(w); err != nil {
		t.Fatalf("Validate with break: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Window)
	}{
		{"start after end", func(w *Window) { w.StartMinute = 720; w.EndMinute = 540 }},
		{"start equals end", func(w *Window) { w.StartMinute = 540; w.EndMinute = 540 }},
		{"negative start", func(w *Window) { w.StartMinute = -10 }},
		{"end past midnight", func(w *Window) { w.EndMinute = 1500 }},
		{"bad weekday", func(w *Window) { w.DayOfWeek = 7 }},
		{"zero slot duration", func(w *Window) { w.SlotDurationMins = 0 }},
		{"zero capacity", func(w *Window) { w.MaxPatientsPerSlot = 0 }},
		{"bad consultation type", func(w *Window) { w.ConsultationType = "telepathy" }},
		{"break start only", func(w *Window) { w.BreakStartMinute = intPtr(600) }},
		{"inverted break", func(w *Window) {
			w.BreakStartMinute = intPtr(660)
			w.BreakEndMinute = intPtr(630)
		}},
		{"break outside window", func(w *Window) {
			w.BreakStartMinute = intPtr(500)
			w.BreakEndMinute = intPtr(560)
		}},
		{"break past window end", func(w *Window) {
			w.BreakStartMinute = intPtr(700)
			w.BreakEndMinute = intPtr(730)
		}},
		{"effective_to before effective_from", func(w *Window) {
			to := w.EffectiveFrom.AddDate(0, 0, -1)
			w.EffectiveTo = &to
		}},
	}
	for _, c := range cases {
		w := validWindow()
		c.mutate(&w)
		err := Validate(w)
		var invalid *InvalidWindowError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: expected InvalidWindowError, got %v", c.name, err)
		}
	}
}

func TestOverlaps(t *testing.T) {
	a := validWindow()
	b := validWindow()

	// 09:00-12:00 vs 10:00-11:00 nested.
	b.StartMinute, b.EndMinute = 600, 660
	if !Overlaps(a, b) {
		t.Fatal("nested windows should overlap")
	}

	// Touching intervals do not overlap under half-open semantics.
	b.StartMinute, b.EndMinute = 720, 780
	if Overlaps(a, b) {
		t.Fatal("adjacent windows should not overlap")
	}

	b.StartMinute, b.EndMinute = 500, 540
	if Overlaps(a, b) {
		t.Fatal("window ending at the other's start should not overlap")
	}

	b.StartMinute, b.EndMinute = 500, 541
	if !Overlaps(a, b) {
		t.Fatal("one shared minute should overlap")
	}
}

func TestSameLocation(t *testing.T) {
	a := validWindow()
	b := validWindow()

	if !SameLocation(a, b) {
		t.Fatal("two nil locations compete")
	}
	b.LocationID = strPtr("loc-1")
	if !SameLocation(a, b) {
		t.Fatal("a location-agnostic window competes with every location")
	}
	a.LocationID = strPtr("loc-1")
	if !SameLocation(a, b) {
		t.Fatal("equal locations compete")
	}
	b.LocationID = strPtr("loc-2")
	if SameLocation(a, b) {
		t.Fatal("different locations do not compete")
	}
}

func TestFindConflict(t *testing.T) {
	w := validWindow()
	w.ID = "new"

	other := validWindow()
	other.ID = "existing"
	other.StartMinute, other.EndMinute = 600, 660

	err := FindConflict(w, []Window{other})
	var overlap *OverlapError
	if !errors.As(err, &overlap) || overlap.ConflictingWindowID != "existing" {
		t.Fatalf("expected conflict with existing, got %v", err)
	}

	// A location-agnostic window books the provider's time everywhere,
	// so it still conflicts with a located window.
	located := other
	located.LocationID = strPtr("loc-1")
	if err := FindConflict(w, []Window{located}); err == nil {
		t.Fatal("nil-location window must conflict with a located window")
	}
	if err := FindConflict(located, []Window{w}); err == nil {
		t.Fatal("located window must conflict with a nil-location window")
	}

	// Distinct locations do not compete.
	w2 := w
	w2.LocationID = strPtr("loc-2")
	if err := FindConflict(w2, []Window{located}); err != nil {
		t.Fatalf("distinct locations: %v", err)
	}

	// Adjacent windows share no instant.
	adjacent := other
	adjacent.StartMinute, adjacent.EndMinute = 720, 780
	if err := FindConflict(w, []Window{adjacent}); err != nil {
		t.Fatalf("adjacent windows: %v", err)
	}

	// Updating a window never conflicts with its own stored row.
	self := w
	if err := FindConflict(w, []Window{self}); err != nil {
		t.Fatalf("self exclusion: %v", err)
	}
}

func TestPatchApply(t *testing.T) {
	w := validWindow()
	loc := strPtr("loc-9")
	p := Patch{
		StartMinute:      intPtr(600),
		LocationID:       &loc,
		ConsultationType: strPtr(ConsultationVirtual),
	}

	got := p.Apply(w)
	if got.StartMinute != 600 {
		t.Fatalf("StartMinute = %d, want 600", got.StartMinute)
	}
	if got.LocationID == nil || *got.LocationID != "loc-9" {
		t.Fatalf("LocationID = %v, want loc-9", got.LocationID)
	}
	if got.ConsultationType != ConsultationVirtual {
		t.Fatalf("ConsultationType = %q", got.ConsultationType)
	}
	// Untouched fields survive.
	if got.EndMinute != w.EndMinute || got.DayOfWeek != w.DayOfWeek {
		t.Fatal("unpatched fields changed")
	}

	// Clearing a pointer field.
	var cleared *string
	got = Patch{LocationID: &cleared}.Apply(got)
	if got.LocationID != nil {
		t.Fatalf("LocationID = %v, want nil", got.LocationID)
	}
}
