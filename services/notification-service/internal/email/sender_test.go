package email

import (
	"strings"
	"testing"
)

func TestNewSMTPSender_DefaultFrom(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", "")
	if s.from != "no-reply@careslot.local" {
		t.Fatalf("from = %q", s.from)
	}
	if s.addr != "mailpit:1025" {
		t.Fatalf("addr = %q", s.addr)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@careslot.local", "asha@example.com", "Appointment confirmed", "See you soon.")

	for _, want := range []string{
		"From: CareSlot <no-reply@careslot.local>\r\n",
		"To: asha@example.com\r\n",
		"Subject: Appointment confirmed\r\n",
		"Auto-Submitted: auto-generated\r\n",
		"\r\n\r\nSee you soon.\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}
