package slot

import (
	"reflect"
	"testing"

	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
)

func intPtr(v int) *int { return &v }

func window(start, end, dur int) schedule.Window {
	return schedule.Window{
		StartMinute:      start,
		EndMinute:        end,
		SlotDurationMins: dur,
	}
}

func TestGenerate_NoBreak(t *testing.T) {
	// 09:00-12:00, 30 minute slots.
	got := Generate(window(540, 720, 30))
	want := []int{540, 570, 600, 630, 660, 690}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerate_Break(t *testing.T) {
	// 09:00-12:00 with a 10:30-11:00 break. Slots inside the break are
	// suppressed and generation resumes exactly at break end.
	w := window(540, 720, 30)
	w.BreakStartMinute = intPtr(630)
	w.BreakEndMinute = intPtr(660)

	got := Generate(w)
	want := []int{540, 570, 600, 660, 690}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerate_BreakOffGrid(t *testing.T) {
	// Break end off the slot grid: the post-break slot starts at break
	// end, not at the next grid point.
	w := window(540, 720, 30)
	w.BreakStartMinute = intPtr(600)
	w.BreakEndMinute = intPtr(615)

	got := Generate(w)
	want := []int{540, 570, 615, 645, 675}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerate_BreakAtWindowStart(t *testing.T) {
	w := window(540, 720, 30)
	w.BreakStartMinute = intPtr(540)
	w.BreakEndMinute = intPtr(600)

	got := Generate(w)
	want := []int{600, 630, 660, 690}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerate_DurationLargerThanWindow(t *testing.T) {
	if got := Generate(window(540, 560, 30)); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestGenerate_ShortFinalSlotNotEmitted(t *testing.T) {
	// 09:00-09:50 with 30 minute slots: only 09:00 fits fully.
	got := Generate(window(540, 590, 30))
	want := []int{540}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestExcludeBooked(t *testing.T) {
	got := ExcludeBooked([]int{540, 570, 600}, []int{570})
	want := []int{540, 600}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExcludeBooked = %v, want %v", got, want)
	}
}

func TestExcludeBooked_EmptyBooked(t *testing.T) {
	in := []int{540, 570, 600}
	got := ExcludeBooked(in, nil)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("ExcludeBooked = %v, want %v", got, in)
	}
}

func TestExcludeBooked_UnknownBookedIgnored(t *testing.T) {
	got := ExcludeBooked([]int{540, 570}, []int{0, 555, 570, 1000})
	want := []int{540}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExcludeBooked = %v, want %v", got, want)
	}
}
