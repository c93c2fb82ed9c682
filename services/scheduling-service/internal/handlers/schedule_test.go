package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/careslot/careslot/libs/outbox"
	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeFinder struct {
	windows []schedule.Window
	err     error
}

func (f *fakeFinder) FindActiveWindows(context.Context, string, int, time.Time, *string, string) ([]schedule.Window, error) {
	return f.windows, f.err
}

type fakeBooked struct {
	starts []int
}

func (f *fakeBooked) BookedStartMinutes(context.Context, string, time.Time) ([]int, error) {
	return f.starts, nil
}

func availabilityHandler(finder *fakeFinder, booked *fakeBooked) *ScheduleHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := availability.NewService(finder, booked, nil, time.UTC, logger)
	return NewScheduleHandler(nil, svc, nil, nil, logger)
}

func TestAvailability_OK(t *testing.T) {
	finder := &fakeFinder{windows: []schedule.Window{{
		ID:               "win-1",
		ProviderID:       "doc-1",
		DayOfWeek:        1,
		StartMinute:      540,
		EndMinute:        660,
		SlotDurationMins: 30,
		ConsultationType: schedule.ConsultationInPerson,
		ConsultationFee:  "50.00",
		Currency:         "USD",
	}}}
	h := availabilityHandler(finder, &fakeBooked{starts: []int{600}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?provider_id=doc-1&date=2026-09-07", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var entries []availability.WindowAvailability
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := []string{"09:00", "09:30", "10:30"}
	if len(entries[0].Slots) != len(want) {
		t.Fatalf("slots = %v, want %v", entries[0].Slots, want)
	}
	for i := range want {
		if entries[0].Slots[i] != want[i] {
			t.Fatalf("slots = %v, want %v", entries[0].Slots, want)
		}
	}
}

func TestAvailability_MissingParams(t *testing.T) {
	h := availabilityHandler(&fakeFinder{}, &fakeBooked{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?provider_id=doc-1", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAvailability_BadDate(t *testing.T) {
	h := availabilityHandler(&fakeFinder{}, &fakeBooked{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?provider_id=doc-1&date=garbage", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAvailability_StoreError(t *testing.T) {
	h := availabilityHandler(&fakeFinder{err: errors.New("boom")}, &fakeBooked{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?provider_id=doc-1&date=2026-09-07", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestAvailability_MethodNotAllowed(t *testing.T) {
	h := availabilityHandler(&fakeFinder{}, &fakeBooked{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/availability", nil)
	rec := httptest.NewRecorder()
	h.Availability(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// fakeTx satisfies pgx.Tx for handler tests; every statement succeeds.
type fakeTx struct{}

func (fakeTx) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(context.Context) error          { return nil }
func (fakeTx) Rollback(context.Context) error        { return nil }
func (fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (fakeTx) Conn() *pgx.Conn                                         { return nil }

type fakeStore struct {
	window schedule.Window

	updateHospital     string
	updateID           string
	deactivateHospital string
	deactivateID       string
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeStore) Insert(_ context.Context, _ pgx.Tx, w schedule.Window) (schedule.Window, error) {
	return w, nil
}

func (f *fakeStore) Update(_ context.Context, _ pgx.Tx, hospitalID, id string, _ schedule.Patch) (schedule.Window, error) {
	f.updateHospital, f.updateID = hospitalID, id
	return f.window, nil
}

func (f *fakeStore) Deactivate(_ context.Context, _ pgx.Tx, hospitalID, id string) (schedule.Window, error) {
	f.deactivateHospital, f.deactivateID = hospitalID, id
	return f.window, nil
}

func (f *fakeStore) ListByProvider(context.Context, string, string, int) ([]schedule.Window, error) {
	return nil, nil
}

func storeHandler(store *fakeStore) *ScheduleHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewScheduleHandler(store, nil, nil, outbox.NewRepository(nil), logger)
}

func TestUpdate_ScopedToCallerHospital(t *testing.T) {
	store := &fakeStore{window: schedule.Window{
		ID:               "win-1",
		HospitalID:       "hosp-1",
		ProviderID:       "doc-1",
		StartMinute:      540,
		EndMinute:        720,
		SlotDurationMins: 30,
		IsActive:         true,
	}}
	h := storeHandler(store)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedules/update?id=win-1", strings.NewReader(`{}`))
	req.Header.Set("X-Hospital-Id", "hosp-1")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.updateHospital != "hosp-1" || store.updateID != "win-1" {
		t.Fatalf("store received hospital %q id %q", store.updateHospital, store.updateID)
	}
}

func TestDeactivate_ScopedToCallerHospital(t *testing.T) {
	store := &fakeStore{window: schedule.Window{
		ID:         "win-1",
		HospitalID: "hosp-1",
		ProviderID: "doc-1",
	}}
	h := storeHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules/deactivate?id=win-1", nil)
	req.Header.Set("X-Hospital-Id", "hosp-1")
	rec := httptest.NewRecorder()
	h.Deactivate(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if store.deactivateHospital != "hosp-1" || store.deactivateID != "win-1" {
		t.Fatalf("store received hospital %q id %q", store.deactivateHospital, store.deactivateID)
	}
}

func TestUpdate_RequiresHospitalHeader(t *testing.T) {
	store := &fakeStore{}
	h := storeHandler(store)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/schedules/update?id=win-1", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if store.updateID != "" {
		t.Fatal("store must not be reached without a hospital")
	}
}

func TestWriteScheduleError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeScheduleError(rec, &schedule.OverlapError{ConflictingWindowID: "win-9"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["conflicting_window_id"] != "win-9" {
		t.Fatalf("conflicting_window_id = %q", body["conflicting_window_id"])
	}

	rec = httptest.NewRecorder()
	writeScheduleError(rec, &schedule.InvalidWindowError{Reason: "start_time must be before end_time"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status = %d, want 422", rec.Code)
	}

	rec = httptest.NewRecorder()
	writeScheduleError(rec, schedule.ErrWindowNotFound)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("not found status = %d, want 404", rec.Code)
	}
}
