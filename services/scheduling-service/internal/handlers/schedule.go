package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careslot/careslot/libs/outbox"
	"github.com/careslot/careslot/libs/timex"
	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
	"github.com/jackc/pgx/v5"
)

// scheduleStore is the window store surface the handlers need. Every
// mutation is scoped to the caller's hospital.
type scheduleStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, tx pgx.Tx, w schedule.Window) (schedule.Window, error)
	Update(ctx context.Context, tx pgx.Tx, hospitalID, id string, patch schedule.Patch) (schedule.Window, error)
	Deactivate(ctx context.Context, tx pgx.Tx, hospitalID, id string) (schedule.Window, error)
	ListByProvider(ctx context.Context, hospitalID, providerID string, limit int) ([]schedule.Window, error)
}

type ScheduleHandler struct {
	repo       scheduleStore
	avail      *availability.Service
	cache      *availability.Cache
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func NewScheduleHandler(repo scheduleStore, avail *availability.Service, cache *availability.Cache, outboxRepo *outbox.Repository, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		repo:       repo,
		avail:      avail,
		cache:      cache,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func hospitalIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Hospital-Id"))
}

type createWindowRequest struct {
	ProviderID         string  `json:"provider_id"`
	LocationID         string  `json:"location_id"`
	DayOfWeek          int     `json:"day_of_week"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	SlotDurationMins   int     `json:"slot_duration_minutes"`
	MaxPatientsPerSlot int     `json:"max_patients_per_slot"`
	ConsultationType   string  `json:"consultation_type"`
	BreakStart         string  `json:"break_start"`
	BreakEnd           string  `json:"break_end"`
	ConsultationFee    float64 `json:"consultation_fee"`
	Currency           string  `json:"currency"`
	EffectiveFrom      string  `json:"effective_from"`
	EffectiveTo        string  `json:"effective_to"`
}

type windowResponse struct {
	ID                 string  `json:"id"`
	ProviderID         string  `json:"provider_id"`
	LocationID         *string `json:"location_id,omitempty"`
	DayOfWeek          int     `json:"day_of_week"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	SlotDurationMins   int     `json:"slot_duration_minutes"`
	MaxPatientsPerSlot int     `json:"max_patients_per_slot"`
	ConsultationType   string  `json:"consultation_type"`
	BreakStart         string  `json:"break_start,omitempty"`
	BreakEnd           string  `json:"break_end,omitempty"`
	ConsultationFee    string  `json:"consultation_fee"`
	Currency           string  `json:"currency"`
	EffectiveFrom      string  `json:"effective_from"`
	EffectiveTo        string  `json:"effective_to,omitempty"`
	IsActive           bool    `json:"is_active"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hospitalID := hospitalIDFromHeader(r)
	if hospitalID == "" {
		http.Error(w, "missing X-Hospital-Id", http.StatusBadRequest)
		return
	}

	var req createWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	win, ok := h.windowFromRequest(w, hospitalID, req)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := h.repo.Insert(ctx, tx, win)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	if err := h.insertWindowEvent(ctx, tx, "schedule.window.created.v1", created); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.invalidateCache(r, created.ProviderID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(windowToResponse(created))
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hospitalID := hospitalIDFromHeader(r)
	if hospitalID == "" {
		http.Error(w, "missing X-Hospital-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		LocationID         *string  `json:"location_id"`
		DayOfWeek          *int     `json:"day_of_week"`
		StartTime          *string  `json:"start_time"`
		EndTime            *string  `json:"end_time"`
		SlotDurationMins   *int     `json:"slot_duration_minutes"`
		MaxPatientsPerSlot *int     `json:"max_patients_per_slot"`
		ConsultationType   *string  `json:"consultation_type"`
		BreakStart         *string  `json:"break_start"`
		BreakEnd           *string  `json:"break_end"`
		ConsultationFee    *float64 `json:"consultation_fee"`
		Currency           *string  `json:"currency"`
		EffectiveFrom      *string  `json:"effective_from"`
		EffectiveTo        *string  `json:"effective_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var patch schedule.Patch
	if req.LocationID != nil {
		// An empty string clears the location (window becomes
		// location-agnostic).
		loc := optionalString(*req.LocationID)
		patch.LocationID = &loc
	}
	patch.DayOfWeek = req.DayOfWeek
	if req.StartTime != nil {
		m, err := timex.ToMinutes(strings.TrimSpace(*req.StartTime))
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		patch.StartMinute = &m
	}
	if req.EndTime != nil {
		m, err := timex.ToMinutes(strings.TrimSpace(*req.EndTime))
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		patch.EndMinute = &m
	}
	patch.SlotDurationMins = req.SlotDurationMins
	patch.MaxPatientsPerSlot = req.MaxPatientsPerSlot
	if req.ConsultationType != nil {
		ct := strings.TrimSpace(*req.ConsultationType)
		patch.ConsultationType = &ct
	}
	if req.BreakStart != nil {
		// Empty string clears the break (paired with break_end below).
		bm, err := optionalMinutes(*req.BreakStart)
		if err != nil {
			http.Error(w, "invalid break_start", http.StatusBadRequest)
			return
		}
		patch.BreakStartMinute = &bm
	}
	if req.BreakEnd != nil {
		bm, err := optionalMinutes(*req.BreakEnd)
		if err != nil {
			http.Error(w, "invalid break_end", http.StatusBadRequest)
			return
		}
		patch.BreakEndMinute = &bm
	}
	if req.ConsultationFee != nil {
		fee := strconv.FormatFloat(*req.ConsultationFee, 'f', 2, 64)
		patch.ConsultationFee = &fee
	}
	if req.Currency != nil {
		cur := strings.TrimSpace(*req.Currency)
		patch.Currency = &cur
	}
	if req.EffectiveFrom != nil {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*req.EffectiveFrom))
		if err != nil {
			http.Error(w, "invalid effective_from", http.StatusBadRequest)
			return
		}
		patch.EffectiveFrom = &d
	}
	if req.EffectiveTo != nil {
		// Empty string makes the window open-ended.
		to, err := optionalDate(*req.EffectiveTo)
		if err != nil {
			http.Error(w, "invalid effective_to", http.StatusBadRequest)
			return
		}
		patch.EffectiveTo = &to
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := h.repo.Update(ctx, tx, hospitalID, id, patch)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	if err := h.insertWindowEvent(ctx, tx, "schedule.window.updated.v1", updated); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.invalidateCache(r, updated.ProviderID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(windowToResponse(updated))
}

func (h *ScheduleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hospitalID := hospitalIDFromHeader(r)
	if hospitalID == "" {
		http.Error(w, "missing X-Hospital-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	win, err := h.repo.Deactivate(ctx, tx, hospitalID, id)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	if err := h.insertWindowEvent(ctx, tx, "schedule.window.deactivated.v1", win); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.invalidateCache(r, win.ProviderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hospitalID := hospitalIDFromHeader(r)
	if hospitalID == "" {
		http.Error(w, "missing X-Hospital-Id", http.StatusBadRequest)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}

	windows, err := h.repo.ListByProvider(r.Context(), hospitalID, providerID, 100)
	if err != nil {
		http.Error(w, "failed to list schedules", http.StatusInternalServerError)
		return
	}

	items := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		items = append(items, windowToResponse(win))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *ScheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || date == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}

	locationID := optionalString(r.URL.Query().Get("location_id"))
	consultationType := strings.TrimSpace(r.URL.Query().Get("consultation_type"))

	entries, err := h.avail.GetAvailableSlots(r.Context(), providerID, date, locationID, consultationType)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidDate) {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries)
}

func (h *ScheduleHandler) windowFromRequest(w http.ResponseWriter, hospitalID string, req createWindowRequest) (schedule.Window, bool) {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return schedule.Window{}, false
	}

	startMin, err := timex.ToMinutes(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return schedule.Window{}, false
	}
	endMin, err := timex.ToMinutes(strings.TrimSpace(req.EndTime))
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return schedule.Window{}, false
	}

	win := schedule.Window{
		HospitalID:         hospitalID,
		ProviderID:         req.ProviderID,
		LocationID:         optionalString(req.LocationID),
		DayOfWeek:          req.DayOfWeek,
		StartMinute:        startMin,
		EndMinute:          endMin,
		SlotDurationMins:   req.SlotDurationMins,
		MaxPatientsPerSlot: req.MaxPatientsPerSlot,
		ConsultationType:   strings.TrimSpace(req.ConsultationType),
		ConsultationFee:    strconv.FormatFloat(req.ConsultationFee, 'f', 2, 64),
		Currency:           strings.TrimSpace(req.Currency),
	}
	if win.SlotDurationMins == 0 {
		win.SlotDurationMins = 30
	}
	if win.MaxPatientsPerSlot == 0 {
		win.MaxPatientsPerSlot = 1
	}
	if win.Currency == "" {
		win.Currency = "USD"
	}

	if strings.TrimSpace(req.BreakStart) != "" || strings.TrimSpace(req.BreakEnd) != "" {
		bs, err := timex.ToMinutes(strings.TrimSpace(req.BreakStart))
		if err != nil {
			http.Error(w, "invalid break_start", http.StatusBadRequest)
			return schedule.Window{}, false
		}
		be, err := timex.ToMinutes(strings.TrimSpace(req.BreakEnd))
		if err != nil {
			http.Error(w, "invalid break_end", http.StatusBadRequest)
			return schedule.Window{}, false
		}
		win.BreakStartMinute = &bs
		win.BreakEndMinute = &be
	}

	from, err := time.Parse("2006-01-02", strings.TrimSpace(req.EffectiveFrom))
	if err != nil {
		http.Error(w, "invalid effective_from", http.StatusBadRequest)
		return schedule.Window{}, false
	}
	win.EffectiveFrom = from
	if strings.TrimSpace(req.EffectiveTo) != "" {
		to, err := time.Parse("2006-01-02", strings.TrimSpace(req.EffectiveTo))
		if err != nil {
			http.Error(w, "invalid effective_to", http.StatusBadRequest)
			return schedule.Window{}, false
		}
		win.EffectiveTo = &to
	}

	return win, true
}

func (h *ScheduleHandler) insertWindowEvent(ctx context.Context, tx pgx.Tx, eventType string, win schedule.Window) error {
	payload, err := json.Marshal(map[string]any{
		"window_id":   win.ID,
		"hospital_id": win.HospitalID,
		"provider_id": win.ProviderID,
		"day_of_week": win.DayOfWeek,
		"is_active":   win.IsActive,
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "schedule_window",
		AggregateID:   win.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (h *ScheduleHandler) invalidateCache(r *http.Request, providerID string) {
	if h.cache == nil {
		return
	}
	h.cache.Invalidate(r.Context(), providerID)
}

func writeScheduleError(w http.ResponseWriter, err error) {
	var invalid *schedule.InvalidWindowError
	var overlap *schedule.OverlapError
	switch {
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &overlap):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":                 "schedule window overlaps an existing active window",
			"conflicting_window_id": overlap.ConflictingWindowID,
		})
	case errors.Is(err, schedule.ErrWindowNotFound):
		http.Error(w, "schedule window not found", http.StatusNotFound)
	default:
		http.Error(w, "db error", http.StatusInternalServerError)
	}
}

func windowToResponse(win schedule.Window) windowResponse {
	resp := windowResponse{
		ID:                 win.ID,
		ProviderID:         win.ProviderID,
		LocationID:         win.LocationID,
		DayOfWeek:          win.DayOfWeek,
		SlotDurationMins:   win.SlotDurationMins,
		MaxPatientsPerSlot: win.MaxPatientsPerSlot,
		ConsultationType:   win.ConsultationType,
		ConsultationFee:    win.ConsultationFee,
		Currency:           win.Currency,
		EffectiveFrom:      win.EffectiveFrom.Format("2006-01-02"),
		IsActive:           win.IsActive,
	}
	resp.StartTime, _ = timex.FromMinutes(win.StartMinute)
	resp.EndTime, _ = timex.FromMinutes(win.EndMinute)
	if win.BreakStartMinute != nil {
		resp.BreakStart, _ = timex.FromMinutes(*win.BreakStartMinute)
	}
	if win.BreakEndMinute != nil {
		resp.BreakEnd, _ = timex.FromMinutes(*win.BreakEndMinute)
	}
	if win.EffectiveTo != nil {
		resp.EffectiveTo = win.EffectiveTo.Format("2006-01-02")
	}
	return resp
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalMinutes(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	m, err := timex.ToMinutes(s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func optionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
