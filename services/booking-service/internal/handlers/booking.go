package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careslot/careslot/libs/outbox"
	"github.com/careslot/careslot/libs/timex"
	"github.com/careslot/careslot/services/booking-service/internal/model"
	"github.com/careslot/careslot/services/booking-service/internal/scheduling"
	"github.com/careslot/careslot/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	scheduling scheduling.Provider
}

func NewBookingHandler(repo *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger, schedulingProvider scheduling.Provider) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		scheduling: schedulingProvider,
	}
}

type createBookingRequest struct {
	HospitalID       string `json:"hospital_id"`
	ProviderID       string `json:"provider_id"`
	LocationID       string `json:"location_id"`
	PatientName      string `json:"patient_name"`
	PatientEmail     string `json:"patient_email"`
	PatientPhone     string `json:"patient_phone"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	ConsultationType string `json:"consultation_type"`
	DurationMinutes  int    `json:"duration_minutes"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelBookingRequest struct {
	HospitalID    string `json:"hospital_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type listAppointmentItem struct {
	AppointmentID    string `json:"appointment_id"`
	ProviderID       string `json:"provider_id"`
	LocationID       string `json:"location_id,omitempty"`
	PatientName      string `json:"patient_name"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	ConsultationType string `json:"consultation_type"`
	Status           string `json:"status"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

var errSlotFull = errors.New("slot capacity reached")

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.HospitalID = strings.TrimSpace(req.HospitalID)
	if v := strings.TrimSpace(r.Header.Get("X-Hospital-Id")); v != "" {
		req.HospitalID = v
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.StartTime = strings.TrimSpace(req.StartTime)
	if req.ConsultationType == "" {
		req.ConsultationType = "in_person"
	}

	if req.HospitalID == "" || req.ProviderID == "" || req.PatientName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if req.ConsultationType != "in_person" && req.ConsultationType != "virtual" {
		http.Error(w, "consultation_type must be in_person or virtual", http.StatusBadRequest)
		return
	}

	onDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	startMinute, err := timex.ToMinutes(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt := &model.Appointment{
		HospitalID:       req.HospitalID,
		ProviderID:       req.ProviderID,
		PatientName:      req.PatientName,
		PatientEmail:     strings.TrimSpace(req.PatientEmail),
		PatientPhone:     strings.TrimSpace(req.PatientPhone),
		AppointmentDate:  onDate,
		StartMinute:      startMinute,
		DurationMins:     req.DurationMinutes,
		ConsultationType: req.ConsultationType,
		Status:           "booked",
	}
	if loc := strings.TrimSpace(req.LocationID); loc != "" {
		appt.LocationID = &loc
	}
	if appt.DurationMins <= 0 {
		appt.DurationMins = 30
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, appt.HospitalID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{AppointmentID: rec.AppointmentID})
			return
		}
	}

	// The requested slot must be one the scheduling service currently offers.
	// Without a configured provider the DB capacity check is the only guard.
	maxPatients := 1
	ok, err := h.validateRequestedSlot(ctx, appt, req.Date, &maxPatients)
	if err != nil {
		// Do not finalize idempotency on dependency errors; the client can retry with the same key.
		http.Error(w, "scheduling service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		if idempotencyKey != "" {
			if h.finalizeIdempotencyError(ctx, tx, appt.HospitalID, idempotencyKey, http.StatusUnprocessableEntity, "requested slot is not available") {
				_ = tx.Commit(ctx)
				return
			}
		}
		http.Error(w, "requested slot is not available", http.StatusUnprocessableEntity)
		return
	}

	if err := h.enforceSlotCapacity(ctx, tx, appt, maxPatients); err != nil {
		if errors.Is(err, errSlotFull) {
			if idempotencyKey != "" {
				if h.finalizeIdempotencyError(ctx, tx, appt.HospitalID, idempotencyKey, http.StatusConflict, "time slot already booked") {
					_ = tx.Commit(ctx)
					return
				}
			}
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "capacity check failed", http.StatusInternalServerError)
		return
	}

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	startHHMM, err := timex.FromMinutes(appt.StartMinute)
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id":    id,
		"hospital_id":       appt.HospitalID,
		"provider_id":       appt.ProviderID,
		"patient_name":      appt.PatientName,
		"patient_email":     appt.PatientEmail,
		"patient_phone":     appt.PatientPhone,
		"date":              appt.AppointmentDate.Format("2006-01-02"),
		"start_time":        startHHMM,
		"duration_minutes":  appt.DurationMins,
		"consultation_type": appt.ConsultationType,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}

	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     "booking.appointment.booked.v1",
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{AppointmentID: id})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, appt.HospitalID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *BookingHandler) validateRequestedSlot(ctx context.Context, appt *model.Appointment, date string, maxPatients *int) (bool, error) {
	if h.scheduling == nil {
		return true, nil
	}

	startHHMM, err := timex.FromMinutes(appt.StartMinute)
	if err != nil {
		return false, nil
	}

	locationID := ""
	if appt.LocationID != nil {
		locationID = *appt.LocationID
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	windows, err := h.scheduling.GetProviderAvailability(reqCtx, appt.ProviderID, date, locationID, appt.ConsultationType)
	if err != nil {
		return false, fmt.Errorf("availability fetch failed: %w", err)
	}

	win, found := matchWindow(windows, startHHMM, appt.ConsultationType)
	if !found {
		return false, nil
	}
	if win.SlotDurationMinutes > 0 {
		appt.DurationMins = win.SlotDurationMinutes
	}
	if win.MaxPatientsPerSlot > 0 {
		*maxPatients = win.MaxPatientsPerSlot
	}
	return true, nil
}

// matchWindow picks the first window offering the requested start minute in
// the requested consultation mode. Windows offering "both" match either mode.
func matchWindow(windows []scheduling.WindowSlots, startHHMM, consultationType string) (scheduling.WindowSlots, bool) {
	for _, win := range windows {
		if win.ConsultationType != "" && win.ConsultationType != "both" && win.ConsultationType != consultationType {
			continue
		}
		for _, s := range win.Slots {
			if s == startHHMM {
				return win, true
			}
		}
	}
	return scheduling.WindowSlots{}, false
}

func (h *BookingHandler) enforceSlotCapacity(ctx context.Context, tx pgx.Tx, appt *model.Appointment, maxPatients int) error {
	if maxPatients <= 0 {
		maxPatients = 1
	}
	cnt, err := h.repo.CountBookedForSlot(ctx, tx, appt.ProviderID, appt.AppointmentDate, appt.StartMinute)
	if err != nil {
		return err
	}
	if cnt >= maxPatients {
		return errSlotFull
	}
	return nil
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.HospitalID = strings.TrimSpace(req.HospitalID)
	if v := strings.TrimSpace(r.Header.Get("X-Hospital-Id")); v != "" {
		req.HospitalID = v
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.HospitalID == "" || req.AppointmentID == "" {
		http.Error(w, "hospital_id and appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.HospitalID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == "cancelled" && appt.CancelledAt != nil {
		h.writeCancelResponse(w, appt.ID, appt.CancelledAt.UTC())
		return
	}
	if appt.Status != "booked" {
		http.Error(w, "appointment cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, req.HospitalID, appt.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	startHHMM, err := timex.FromMinutes(appt.StartMinute)
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	cancelPayload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"hospital_id":    appt.HospitalID,
		"provider_id":    appt.ProviderID,
		"patient_name":   appt.PatientName,
		"patient_email":  appt.PatientEmail,
		"date":           appt.AppointmentDate.Format("2006-01-02"),
		"start_time":     startHHMM,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.cancelled.v1",
		Payload:       cancelPayload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.writeCancelResponse(w, appt.ID, cancelledAt.UTC())
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hospitalID := strings.TrimSpace(r.Header.Get("X-Hospital-Id"))
	if hospitalID == "" {
		hospitalID = strings.TrimSpace(r.URL.Query().Get("hospital_id"))
	}
	if hospitalID == "" {
		http.Error(w, "hospital_id required", http.StatusBadRequest)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.ListByHospital(r.Context(), hospitalID, providerID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		startHHMM, err := timex.FromMinutes(appt.StartMinute)
		if err != nil {
			http.Error(w, "failed to build response", http.StatusInternalServerError)
			return
		}
		item := listAppointmentItem{
			AppointmentID:    appt.ID,
			ProviderID:       appt.ProviderID,
			PatientName:      appt.PatientName,
			Date:             appt.AppointmentDate.Format("2006-01-02"),
			StartTime:        startHHMM,
			DurationMinutes:  appt.DurationMins,
			ConsultationType: appt.ConsultationType,
			Status:           appt.Status,
			CreatedAt:        appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.LocationID != nil {
			item.LocationID = *appt.LocationID
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) writeCancelResponse(w http.ResponseWriter, appointmentID string, cancelledAt time.Time) {
	resp := cancelBookingResponse{
		AppointmentID: appointmentID,
		Status:        "cancelled",
		CancelledAt:   cancelledAt.Format(time.RFC3339),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, hospitalID, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.repo.FinalizeIdempotency(ctx, tx, hospitalID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}
