package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/careslot/careslot/services/booking-service/internal/scheduling"
)

func TestMatchWindow(t *testing.T) {
	windows := []scheduling.WindowSlots{
		{WindowID: "win-morning", ConsultationType: "in_person", SlotDurationMinutes: 30, MaxPatientsPerSlot: 1, Slots: []string{"09:00", "09:30", "10:00"}},
		{WindowID: "win-evening", ConsultationType: "both", SlotDurationMinutes: 20, MaxPatientsPerSlot: 3, Slots: []string{"18:00", "18:20"}},
	}

	win, ok := matchWindow(windows, "09:30", "in_person")
	if !ok || win.WindowID != "win-morning" {
		t.Fatalf("expected win-morning, got %+v (ok=%v)", win, ok)
	}

	// A virtual request must not match the in-person window even though the
	// start minute exists there.
	if _, ok := matchWindow(windows, "09:30", "virtual"); ok {
		t.Fatalf("virtual request matched in-person window")
	}

	// "both" windows serve either mode.
	win, ok = matchWindow(windows, "18:20", "virtual")
	if !ok || win.WindowID != "win-evening" {
		t.Fatalf("expected win-evening, got %+v (ok=%v)", win, ok)
	}
	win, ok = matchWindow(windows, "18:00", "in_person")
	if !ok || win.WindowID != "win-evening" {
		t.Fatalf("expected win-evening, got %+v (ok=%v)", win, ok)
	}

	if _, ok := matchWindow(windows, "12:00", "in_person"); ok {
		t.Fatalf("unexpected match for unoffered start")
	}
	if _, ok := matchWindow(nil, "09:00", "in_person"); ok {
		t.Fatalf("unexpected match against no windows")
	}
}

func newTestHandler() *BookingHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewBookingHandler(nil, nil, logger, nil)
}

func TestCreate_RejectsBadRequests(t *testing.T) {
	h := newTestHandler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing fields", `{"hospital_id":"h1"}`, http.StatusBadRequest},
		{"bad consultation type", `{"hospital_id":"h1","provider_id":"doc-1","patient_name":"Jo","date":"2026-09-07","start_time":"09:00","consultation_type":"phone"}`, http.StatusBadRequest},
		{"bad date", `{"hospital_id":"h1","provider_id":"doc-1","patient_name":"Jo","date":"07-09-2026","start_time":"09:00"}`, http.StatusBadRequest},
		{"bad start time", `{"hospital_id":"h1","provider_id":"doc-1","patient_name":"Jo","date":"2026-09-07","start_time":"9am"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestCreate_MethodNotAllowed(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestCancel_RequiresIDs(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"hospital_id":"h1"}`))
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestList_RequiresHospital(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
