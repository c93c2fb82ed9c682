// Package timex converts between "HH:MM" wall-clock strings and
// minute-of-day offsets. Schedule rows store minutes; the HTTP surface
// speaks "HH:MM".
package timex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedTime       = errors.New("malformed time")
	ErrInvalidMinuteOffset = errors.New("minute offset out of range")
)

const MinutesPerDay = 24 * 60

// ToMinutes parses a strict "HH:MM" string into a 0-1439 minute offset.
func ToMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	if hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return hours*60 + mins, nil
}

// FromMinutes renders a 0-1439 minute offset as zero-padded "HH:MM".
func FromMinutes(m int) (string, error) {
	if m < 0 || m >= MinutesPerDay {
		return "", fmt.Errorf("%w: %d", ErrInvalidMinuteOffset, m)
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60), nil
}
