package storage

import (
	"context"
	"time"

	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/services/scheduling-service/internal/schedule"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// Begin opens a serializable transaction. The overlap check and the
// subsequent write must see a consistent window set, otherwise two
// concurrent writers can both pass the check.
func (r *ScheduleRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
}

const windowColumns = `
	id::text, hospital_id::text, provider_id::text, location_id::text,
	day_of_week, start_minute, end_minute, slot_duration_minutes,
	max_patients_per_slot, consultation_type, break_start_minute,
	break_end_minute, consultation_fee::text, currency,
	effective_from, effective_to, is_active, created_at, updated_at`

// Insert validates the window and writes it if it does not overlap any
// active window for the same provider, location, and day of week.
func (r *ScheduleRepository) Insert(ctx context.Context, tx pgx.Tx, w schedule.Window) (schedule.Window, error) {
	if err := schedule.Validate(w); err != nil {
		return schedule.Window{}, err
	}

	others, err := activeWindowsForDay(ctx, tx, w.ProviderID, w.DayOfWeek, "")
	if err != nil {
		return schedule.Window{}, err
	}
	if err := schedule.FindConflict(w, others); err != nil {
		return schedule.Window{}, err
	}

	w.ID = uuid.NewString()
	w.IsActive = true
	err = tx.QueryRow(ctx, `
		INSERT INTO schedule_windows
			(id, hospital_id, provider_id, location_id, day_of_week,
			start_minute, end_minute, slot_duration_minutes, max_patients_per_slot,
			consultation_type, break_start_minute, break_end_minute,
			consultation_fee, currency, effective_from, effective_to, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, true)
		RETURNING created_at, updated_at
	`, w.ID, w.HospitalID, w.ProviderID, w.LocationID, w.DayOfWeek,
		w.StartMinute, w.EndMinute, w.SlotDurationMins, w.MaxPatientsPerSlot,
		w.ConsultationType, w.BreakStartMinute, w.BreakEndMinute,
		w.ConsultationFee, w.Currency, w.EffectiveFrom, w.EffectiveTo,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return schedule.Window{}, err
	}
	return w, nil
}

// Update merges the patch over the stored row, re-validates, and re-runs
// the overlap check against every other active window for the merged
// provider/day. Rows belonging to another hospital are invisible;
// those, inactive, and unknown ids all report ErrWindowNotFound.
func (r *ScheduleRepository) Update(ctx context.Context, tx pgx.Tx, hospitalID, id string, patch schedule.Patch) (schedule.Window, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM schedule_windows
		WHERE hospital_id = $1 AND id = $2 AND is_active
		FOR UPDATE
	`, hospitalID, id)
	existing, err := scanWindow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return schedule.Window{}, schedule.ErrWindowNotFound
		}
		return schedule.Window{}, err
	}

	merged := patch.Apply(existing)
	if err := schedule.Validate(merged); err != nil {
		return schedule.Window{}, err
	}

	others, err := activeWindowsForDay(ctx, tx, merged.ProviderID, merged.DayOfWeek, merged.ID)
	if err != nil {
		return schedule.Window{}, err
	}
	if err := schedule.FindConflict(merged, others); err != nil {
		return schedule.Window{}, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE schedule_windows
		SET location_id = $2,
			day_of_week = $3,
			start_minute = $4,
			end_minute = $5,
			slot_duration_minutes = $6,
			max_patients_per_slot = $7,
			consultation_type = $8,
			break_start_minute = $9,
			break_end_minute = $10,
			consultation_fee = $11,
			currency = $12,
			effective_from = $13,
			effective_to = $14,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, merged.ID, merged.LocationID, merged.DayOfWeek, merged.StartMinute,
		merged.EndMinute, merged.SlotDurationMins, merged.MaxPatientsPerSlot,
		merged.ConsultationType, merged.BreakStartMinute, merged.BreakEndMinute,
		merged.ConsultationFee, merged.Currency, merged.EffectiveFrom, merged.EffectiveTo,
	).Scan(&merged.UpdatedAt)
	if err != nil {
		return schedule.Window{}, err
	}
	return merged, nil
}

// Deactivate soft-deletes a window. Deactivating an already-inactive
// window is a no-op; an unknown id or another hospital's window
// reports ErrWindowNotFound. Returns the window as it stands so
// callers can emit an event for it.
func (r *ScheduleRepository) Deactivate(ctx context.Context, tx pgx.Tx, hospitalID, id string) (schedule.Window, error) {
	row := tx.QueryRow(ctx, `
		UPDATE schedule_windows
		SET is_active = false,
			updated_at = now()
		WHERE hospital_id = $1 AND id = $2
		RETURNING `+windowColumns+`
	`, hospitalID, id)
	w, err := scanWindow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return schedule.Window{}, schedule.ErrWindowNotFound
		}
		return schedule.Window{}, err
	}
	return w, nil
}

// FindActiveWindows returns the active windows of a provider for one
// weekday whose effective date range covers onDate, ordered by start
// minute. A given location also matches location-agnostic windows; a
// given consultation type also matches windows offering both modes.
func (r *ScheduleRepository) FindActiveWindows(ctx context.Context, providerID string, dayOfWeek int, onDate time.Time, locationID *string, consultationType string) ([]schedule.Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM schedule_windows
		WHERE provider_id = $1
			AND day_of_week = $2
			AND is_active
			AND effective_from <= $3
			AND (effective_to IS NULL OR effective_to >= $3)
			AND ($4::text IS NULL OR location_id IS NULL OR location_id = $4)
			AND ($5 = '' OR consultation_type = $5 OR consultation_type = 'both')
		ORDER BY start_minute ASC
	`, providerID, dayOfWeek, onDate, locationID, consultationType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

// ListByProvider returns every window of a provider, active or not, for
// schedule management screens.
func (r *ScheduleRepository) ListByProvider(ctx context.Context, hospitalID, providerID string, limit int) ([]schedule.Window, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM schedule_windows
		WHERE hospital_id = $1 AND provider_id = $2
		ORDER BY day_of_week ASC, start_minute ASC
		LIMIT $3
	`, hospitalID, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func activeWindowsForDay(ctx context.Context, tx pgx.Tx, providerID string, dayOfWeek int, excludeID string) ([]schedule.Window, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+windowColumns+`
		FROM schedule_windows
		WHERE provider_id = $1
			AND day_of_week = $2
			AND is_active
			AND ($3 = '' OR id::text <> $3)
		ORDER BY start_minute ASC
	`, providerID, dayOfWeek, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func collectWindows(rows pgx.Rows) ([]schedule.Window, error) {
	var out []schedule.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanWindow(row pgx.Row) (schedule.Window, error) {
	var w schedule.Window
	err := row.Scan(
		&w.ID,
		&w.HospitalID,
		&w.ProviderID,
		&w.LocationID,
		&w.DayOfWeek,
		&w.StartMinute,
		&w.EndMinute,
		&w.SlotDurationMins,
		&w.MaxPatientsPerSlot,
		&w.ConsultationType,
		&w.BreakStartMinute,
		&w.BreakEndMinute,
		&w.ConsultationFee,
		&w.Currency,
		&w.EffectiveFrom,
		&w.EffectiveTo,
		&w.IsActive,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return schedule.Window{}, err
	}
	return w, nil
}
