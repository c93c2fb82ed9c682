package storage

import (
	"context"
	"time"

	"github.com/careslot/careslot/libs/db"
)

// AppointmentReader is a read-only view over the appointments table
// owned by booking-service. Availability computation only needs the
// start minutes already committed for a provider on a date.
type AppointmentReader struct {
	pool *db.Pool
}

func NewAppointmentReader(pool *db.Pool) *AppointmentReader {
	return &AppointmentReader{pool: pool}
}

// BookedStartMinutes returns the start minutes of committed appointments
// for (provider, date). Cancelled and rejected appointments do not block
// a slot.
func (r *AppointmentReader) BookedStartMinutes(ctx context.Context, providerID string, onDate time.Time) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status NOT IN ('cancelled', 'rejected')
		ORDER BY start_minute ASC
	`, providerID, onDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
