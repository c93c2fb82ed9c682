package main

import (
	"strings"
	"testing"
)

func TestConfirmationEmail(t *testing.T) {
	subject, body := confirmationEmail(appointmentEvent{
		PatientName: "Asha",
		Date:        "2026-09-07",
		StartTime:   "09:30",
	})
	if subject != "Appointment confirmed" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "Asha") || !strings.Contains(body, "2026-09-07") || !strings.Contains(body, "09:30") {
		t.Fatalf("body missing fields: %q", body)
	}
}

func TestCancellationEmail_IncludesReason(t *testing.T) {
	_, body := cancellationEmail(appointmentEvent{
		PatientName: "Asha",
		Date:        "2026-09-07",
		StartTime:   "09:30",
		Reason:      "provider unavailable",
	})
	if !strings.Contains(body, "provider unavailable") {
		t.Fatalf("body missing reason: %q", body)
	}

	_, body = cancellationEmail(appointmentEvent{PatientName: "Asha", Date: "2026-09-07", StartTime: "09:30"})
	if strings.Contains(body, "Reason") {
		t.Fatalf("body should omit reason when empty: %q", body)
	}
}

func TestSmsText(t *testing.T) {
	evt := appointmentEvent{Date: "2026-09-07", StartTime: "09:30"}
	if got := smsText(evt, false); !strings.Contains(got, "confirmed") {
		t.Fatalf("confirmation sms = %q", got)
	}
	if got := smsText(evt, true); !strings.Contains(got, "cancelled") {
		t.Fatalf("cancellation sms = %q", got)
	}
}
