package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	HospitalID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, hospitalID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, hospitalID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (hospital_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (hospital_id, idempotency_key) DO NOTHING
	`, hospitalID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, hospitalID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, hospitalID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE hospital_id = $1 AND idempotency_key = $2
	`, hospitalID, key, appointmentID, statusCode, response)
	return err
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(hospital_id, provider_id, location_id, patient_name, patient_email, patient_phone,
			appointment_date, start_minute, duration_minutes, consultation_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, appt.HospitalID, appt.ProviderID, appt.LocationID, appt.PatientName, appt.PatientEmail,
		appt.PatientPhone, appt.AppointmentDate, appt.StartMinute, appt.DurationMins,
		appt.ConsultationType, appt.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CountBookedForSlot counts live appointments holding the same slot. It
// first takes a transaction-scoped advisory lock on the slot identity:
// row locks alone cannot serialize concurrent first bookings of an
// empty slot, since there are no rows to lock yet.
func (r *BookingRepository) CountBookedForSlot(ctx context.Context, tx pgx.Tx, providerID string, onDate time.Time, startMinute int) (int, error) {
	if _, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
	`, slotLockKey(providerID, onDate, startMinute)); err != nil {
		return 0, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND start_minute = $3
			AND status NOT IN ('cancelled', 'rejected')
		FOR UPDATE
	`, providerID, onDate, startMinute)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if rows.Err() != nil {
		return 0, rows.Err()
	}
	return count, nil
}

// slotLockKey identifies one bookable slot for advisory locking. Two
// transactions booking the same provider, date, and start minute must
// produce the same key.
func slotLockKey(providerID string, onDate time.Time, startMinute int) string {
	return fmt.Sprintf("slot:%s:%s:%d", providerID, onDate.Format("2006-01-02"), startMinute)
}

const appointmentColumns = `
	id::text, hospital_id::text, provider_id::text, location_id::text,
	patient_name, patient_email, patient_phone, appointment_date,
	start_minute, duration_minutes, consultation_type, status,
	cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, hospitalID, appointmentID string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND hospital_id = $2
		FOR UPDATE
	`, appointmentID, hospitalID)
	return scanAppointment(row)
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, tx pgx.Tx, hospitalID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND hospital_id = $2
		RETURNING cancelled_at
	`, appointmentID, hospitalID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) ListByHospital(ctx context.Context, hospitalID, providerID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE hospital_id = $1
			AND ($2 = '' OR provider_id::text = $2)
		ORDER BY appointment_date DESC, start_minute DESC
		LIMIT $3
	`, hospitalID, providerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.HospitalID,
		&appt.ProviderID,
		&appt.LocationID,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.AppointmentDate,
		&appt.StartMinute,
		&appt.DurationMins,
		&appt.ConsultationType,
		&appt.Status,
		&appt.CancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23P01" || pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, hospitalID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT hospital_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE hospital_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, hospitalID, key).Scan(
		&rec.HospitalID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
