package timex

import (
	"errors"
	"testing"
)

func TestToMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:00", 540},
		{"10:30", 630},
		{"23:59", 1439},
	}
	for _, c := range cases {
		got, err := ToMinutes(c.in)
		if err != nil {
			t.Fatalf("ToMinutes(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ToMinutes(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestToMinutes_Malformed(t *testing.T) {
	for _, in := range []string{"", "9", "09:60", "24:00", "09:00:00", "ab:cd", "-1:30"} {
		if _, err := ToMinutes(in); !errors.Is(err, ErrMalformedTime) {
			t.Fatalf("ToMinutes(%q): expected ErrMalformedTime, got %v", in, err)
		}
	}
}

func TestFromMinutes(t *testing.T) {
	got, err := FromMinutes(540)
	if err != nil {
		t.Fatalf("FromMinutes(540): %v", err)
	}
	if got != "09:00" {
		t.Fatalf("FromMinutes(540) = %q, want %q", got, "09:00")
	}

	got, err = FromMinutes(5)
	if err != nil {
		t.Fatalf("FromMinutes(5): %v", err)
	}
	if got != "00:05" {
		t.Fatalf("FromMinutes(5) = %q, want %q", got, "00:05")
	}

	for _, m := range []int{-1, 1440, 99999} {
		if _, err := FromMinutes(m); !errors.Is(err, ErrInvalidMinuteOffset) {
			t.Fatalf("FromMinutes(%d): expected ErrInvalidMinuteOffset, got %v", m, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		s, err := FromMinutes(m)
		if err != nil {
			t.Fatalf("FromMinutes(%d): %v", m, err)
		}
		back, err := ToMinutes(s)
		if err != nil {
			t.Fatalf("ToMinutes(%q): %v", s, err)
		}
		if back != m {
			t.Fatalf("round trip %d -> %q -> %d", m, s, back)
		}
	}
}
