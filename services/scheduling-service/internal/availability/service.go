package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/careslot/careslot/libs/timex"
	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
	"github.com/careslot/careslot/services/scheduling-service/internal/slot"
)

// WindowFinder is the schedule store view the orchestrator needs.
type WindowFinder interface {
	FindActiveWindows(ctx context.Context, providerID string, dayOfWeek int, onDate time.Time, locationID *string, consultationType string) ([]schedule.Window, error)
}

// BookedSlotSource returns committed appointment start minutes for a
// provider and date. Owned by appointment management; read-only here.
type BookedSlotSource interface {
	BookedStartMinutes(ctx context.Context, providerID string, onDate time.Time) ([]int, error)
}

// WindowAvailability is one window's bookable slots on the queried
// date. An entry with an empty Slots list means the window exists but is
// fully booked, which callers must be able to tell apart from "no
// window configured".
type WindowAvailability struct {
	WindowID           string   `json:"window_id"`
	LocationID         *string  `json:"location_id,omitempty"`
	ConsultationType   string   `json:"consultation_type"`
	SlotDurationMins   int      `json:"slot_duration_minutes"`
	MaxPatientsPerSlot int      `json:"max_patients_per_slot"`
	ConsultationFee    string   `json:"consultation_fee"`
	Currency           string   `json:"currency"`
	Slots              []string `json:"slots"`
}

type Service struct {
	windows WindowFinder
	booked  BookedSlotSource
	cache   *Cache
	loc     *time.Location
	logger  *slog.Logger
}

// NewService wires the orchestrator. loc decides which calendar the
// date string is interpreted in (and therefore its weekday); cache may
// be nil.
func NewService(windows WindowFinder, booked BookedSlotSource, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		windows: windows,
		booked:  booked,
		cache:   cache,
		loc:     loc,
		logger:  logger,
	}
}

// GetAvailableSlots resolves the date to a weekday, expands every
// matching active window into candidate slots, removes booked starts,
// and returns one entry per window. An empty result is a valid "no
// schedule configured" answer, not an error. Store failures propagate
// unchanged; the operation is read-only and externally retriable.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID string, date string, locationID *string, consultationType string) ([]WindowAvailability, error) {
	onDate, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", schedule.ErrInvalidDate, date)
	}

	cacheKey := ""
	if s.cache != nil {
		cacheKey = s.cache.Key(ctx, providerID, date, locationID, consultationType)
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	dayOfWeek := int(onDate.Weekday())
	windows, err := s.windows.FindActiveWindows(ctx, providerID, dayOfWeek, onDate, locationID, consultationType)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []WindowAvailability{}, nil
	}

	bookedStarts, err := s.booked.BookedStartMinutes(ctx, providerID, onDate)
	if err != nil {
		return nil, err
	}

	out := make([]WindowAvailability, 0, len(windows))
	for _, w := range windows {
		candidates := slot.ExcludeBooked(slot.Generate(w), bookedStarts)
		slots := make([]string, 0, len(candidates))
		for _, m := range candidates {
			hhmm, err := timex.FromMinutes(m)
			if err != nil {
				return nil, err
			}
			slots = append(slots, hhmm)
		}
		out = append(out, WindowAvailability{
			WindowID:           w.ID,
			LocationID:         w.LocationID,
			ConsultationType:   w.ConsultationType,
			SlotDurationMins:   w.SlotDurationMins,
			MaxPatientsPerSlot: w.MaxPatientsPerSlot,
			ConsultationFee:    w.ConsultationFee,
			Currency:           w.Currency,
			Slots:              slots,
		})
	}

	if s.cache != nil && cacheKey != "" {
		s.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}
