package availability

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
)

type fakeWindowFinder struct {
	windows    []schedule.Window
	err        error
	gotDay     int
	gotDate    time.Time
	gotLoc     *string
	gotConsult string
}

func (f *fakeWindowFinder) FindActiveWindows(_ context.Context, _ string, dayOfWeek int, onDate time.Time, locationID *string, consultationType string) ([]schedule.Window, error) {
	f.gotDay = dayOfWeek
	f.gotDate = onDate
	f.gotLoc = locationID
	f.gotConsult = consultationType
	return f.windows, f.err
}

type fakeBookedSource struct {
	starts []int
	err    error
	calls  int
}

func (f *fakeBookedSource) BookedStartMinutes(_ context.Context, _ string, _ time.Time) ([]int, error) {
	f.calls++
	return f.starts, f.err
}

func intPtr(v int) *int { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mondayWindow() schedule.Window {
	return schedule.Window{
		ID:                 "win-1",
		ProviderID:         "doc-1",
		DayOfWeek:          1,
		StartMinute:        540,
		EndMinute:          720,
		SlotDurationMins:   30,
		MaxPatientsPerSlot: 1,
		ConsultationType:   schedule.ConsultationInPerson,
		BreakStartMinute:   intPtr(630),
		BreakEndMinute:     intPtr(660),
		ConsultationFee:    "75.00",
		Currency:           "USD",
		IsActive:           true,
	}
}

func TestGetAvailableSlots_EndToEnd(t *testing.T) {
	// Monday 09:00-12:00, 30 minute slots, 10:30-11:00 break, 09:30
	// already booked.
	finder := &fakeWindowFinder{windows: []schedule.Window{mondayWindow()}}
	booked := &fakeBookedSource{starts: []int{570}}
	svc := NewService(finder, booked, nil, time.UTC, testLogger())

	got, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-07", nil, "")
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 window entry, got %d", len(got))
	}
	entry := got[0]
	if entry.WindowID != "win-1" {
		t.Fatalf("WindowID = %q", entry.WindowID)
	}
	if entry.ConsultationFee != "75.00" || entry.Currency != "USD" {
		t.Fatalf("fee = %q %q", entry.ConsultationFee, entry.Currency)
	}
	wantSlots := []string{"09:00", "10:00", "11:00", "11:30"}
	if !reflect.DeepEqual(entry.Slots, wantSlots) {
		t.Fatalf("Slots = %v, want %v", entry.Slots, wantSlots)
	}

	// 2026-09-07 is a Monday.
	if finder.gotDay != 1 {
		t.Fatalf("dayOfWeek = %d, want 1", finder.gotDay)
	}
}

func TestGetAvailableSlots_EmptySchedule(t *testing.T) {
	finder := &fakeWindowFinder{}
	booked := &fakeBookedSource{}
	svc := NewService(finder, booked, nil, time.UTC, testLogger())

	got, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-07", nil, "")
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty (non-nil) result, got %v", got)
	}
	if booked.calls != 0 {
		t.Fatal("booked lookup should be skipped when no windows match")
	}
}

func TestGetAvailableSlots_FullyBookedWindowStillListed(t *testing.T) {
	w := mondayWindow()
	w.BreakStartMinute = nil
	w.BreakEndMinute = nil
	finder := &fakeWindowFinder{windows: []schedule.Window{w}}
	booked := &fakeBookedSource{starts: []int{540, 570, 600, 630, 660, 690}}
	svc := NewService(finder, booked, nil, time.UTC, testLogger())

	got, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-07", nil, "")
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the fully booked window to still appear, got %d entries", len(got))
	}
	if len(got[0].Slots) != 0 {
		t.Fatalf("expected no slots, got %v", got[0].Slots)
	}
}

func TestGetAvailableSlots_InvalidDate(t *testing.T) {
	svc := NewService(&fakeWindowFinder{}, &fakeBookedSource{}, nil, time.UTC, testLogger())

	for _, date := range []string{"", "07-09-2026", "2026-13-01", "not-a-date"} {
		_, err := svc.GetAvailableSlots(context.Background(), "doc-1", date, nil, "")
		if !errors.Is(err, schedule.ErrInvalidDate) {
			t.Fatalf("date %q: expected ErrInvalidDate, got %v", date, err)
		}
	}
}

func TestGetAvailableSlots_StoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	finder := &fakeWindowFinder{err: storeErr}
	svc := NewService(finder, &fakeBookedSource{}, nil, time.UTC, testLogger())

	_, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-07", nil, "")
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate unchanged, got %v", err)
	}
}

func TestGetAvailableSlots_FiltersForwarded(t *testing.T) {
	finder := &fakeWindowFinder{}
	svc := NewService(finder, &fakeBookedSource{}, nil, time.UTC, testLogger())

	loc := "loc-1"
	if _, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-08", &loc, schedule.ConsultationVirtual); err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if finder.gotLoc == nil || *finder.gotLoc != "loc-1" {
		t.Fatalf("location filter not forwarded: %v", finder.gotLoc)
	}
	if finder.gotConsult != schedule.ConsultationVirtual {
		t.Fatalf("consultation filter not forwarded: %q", finder.gotConsult)
	}
	// 2026-09-08 is a Tuesday.
	if finder.gotDay != 2 {
		t.Fatalf("dayOfWeek = %d, want 2", finder.gotDay)
	}
}

func TestGetAvailableSlots_MultipleWindowsOrdered(t *testing.T) {
	morning := mondayWindow()
	morning.BreakStartMinute = nil
	morning.BreakEndMinute = nil
	morning.EndMinute = 600

	afternoon := mondayWindow()
	afternoon.ID = "win-2"
	afternoon.BreakStartMinute = nil
	afternoon.BreakEndMinute = nil
	afternoon.StartMinute = 840
	afternoon.EndMinute = 900

	finder := &fakeWindowFinder{windows: []schedule.Window{morning, afternoon}}
	svc := NewService(finder, &fakeBookedSource{starts: []int{840}}, nil, time.UTC, testLogger())

	got, err := svc.GetAvailableSlots(context.Background(), "doc-1", "2026-09-07", nil, "")
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Slots, []string{"09:00", "09:30"}) {
		t.Fatalf("morning slots = %v", got[0].Slots)
	}
	if !reflect.DeepEqual(got[1].Slots, []string{"14:30"}) {
		t.Fatalf("afternoon slots = %v", got[1].Slots)
	}
}
