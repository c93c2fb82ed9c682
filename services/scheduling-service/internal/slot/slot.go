package slot

import "github.com/careslot/careslot/services/scheduling-service/internal/schedule"

// Generate expands one schedule window into its candidate slot start
// minutes. Pure function of the window.
//
// The cursor starts at the window start and advances by the slot
// duration. A cursor inside the break interval [breakStart, breakEnd)
// jumps to breakEnd, so the first slot after a break begins exactly at
// breakEnd even when that leaves an off-grid final stretch. Generation
// stops as soon as a full slot no longer fits before the window end.
func Generate(w schedule.Window) []int {
	var out []int
	cur := w.StartMinute
	for cur+w.SlotDurationMins <= w.EndMinute {
		if w.BreakStartMinute != nil && cur >= *w.BreakStartMinute && cur < *w.BreakEndMinute {
			cur = *w.BreakEndMinute
			continue
		}
		out = append(out, cur)
		cur += w.SlotDurationMins
	}
	return out
}

// ExcludeBooked removes booked start minutes from the candidate list,
// preserving candidate order. An empty booked set returns the
// candidates unchanged.
func ExcludeBooked(candidates []int, booked []int) []int {
	if len(booked) == 0 {
		return candidates
	}
	taken := make(map[int]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
