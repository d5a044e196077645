package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const appointmentColumns = `
	id, appointment_number, pet_platform_id, owner_user_platform_id, entity_platform_id,
	doctor_user_platform_id, employee_assignment_id, appointment_date, appointment_time,
	duration_minutes, appointment_type, reason, notes, status, booking_source,
	emr_otp_code, emr_otp_expires_at, emr_access_granted, emr_otp_sent_to_owner, emr_otp_sent_at,
	emr_otp_verified, emr_otp_verified_at, emr_read_access_granted_at,
	emr_write_access_active, emr_write_access_started_at, emr_write_access_ended_at,
	emr_access_revoked, emr_access_revoked_at, emr_access_revoked_by, emr_revocation_reason,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var e EMRAccess

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.PetPlatformID,
		&a.OwnerPlatformID,
		&a.EntityPlatformID,
		&a.DoctorPlatformID,
		&a.StaffAssignmentID,
		&a.Date,
		&a.Time,
		&a.DurationMinutes,
		&a.Type,
		&a.Reason,
		&a.Notes,
		&a.Status,
		&a.BookingSource,
		&e.OTPCode,
		&e.OTPExpiresAt,
		&e.AccessGranted,
		&e.OTPSentToOwner,
		&e.OTPSentAt,
		&e.OTPVerified,
		&e.OTPVerifiedAt,
		&e.ReadAccessGrantedAt,
		&e.WriteAccessActive,
		&e.WriteAccessStartedAt,
		&e.WriteAccessEndedAt,
		&e.Revoked,
		&e.RevokedAt,
		&e.RevokedBy,
		&e.RevocationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date, nil)
	a.EMR = e
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO hospitals_appointments (
			id, appointment_number, pet_platform_id, owner_user_platform_id, entity_platform_id,
			doctor_user_platform_id, employee_assignment_id, appointment_date, appointment_time,
			duration_minutes, appointment_type, reason, notes, status, booking_source,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.Number, a.PetPlatformID, a.OwnerPlatformID, a.EntityPlatformID,
		a.DoctorPlatformID, a.StaffAssignmentID, a.Date.Format(time.DateOnly), a.Time,
		a.DurationMinutes, a.Type, a.Reason, a.Notes, a.Status, a.BookingSource,
	)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM hospitals_appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// List builds its WHERE clause from the non-zero fields of f.
func (r *PgRepository) List(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.EntityPlatformID != "" {
		add("entity_platform_id = $%d", f.EntityPlatformID)
	}
	if f.OwnerPlatformID != "" {
		add("owner_user_platform_id = $%d", f.OwnerPlatformID)
	}
	if f.PetPlatformID != "" {
		add("pet_platform_id = $%d", f.PetPlatformID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.StartDate != nil {
		add("appointment_date >= $%d::date", f.StartDate.Format(time.DateOnly))
	}
	if f.EndDate != nil {
		add("appointment_date <= $%d::date", f.EndDate.Format(time.DateOnly))
	}
	if f.Term != "" {
		args = append(args, "%"+escapeLike(f.Term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(appointment_number ILIKE $%d OR reason ILIKE $%d)", n, n))
	}

	query := `SELECT ` + appointmentColumns + ` FROM hospitals_appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY appointment_date, appointment_time, created_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

func (r *PgRepository) ListAccessGrantedByPet(ctx context.Context, petID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM hospitals_appointments
		WHERE pet_platform_id = $1
		  AND emr_access_granted
		  AND NOT emr_access_revoked
		ORDER BY appointment_date DESC, appointment_time DESC
	`, petID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindPastOpen(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+`
		FROM hospitals_appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND appointment_date < $1::date
		  AND NOT emr_otp_verified
	`, before.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hospitals_appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, to, statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) IssueOTP(ctx context.Context, id uuid.UUID, in OTPIssue) (*Appointment, error) {
	var sentAt *time.Time
	if in.SentToOwner {
		sentAt = &in.IssuedAt
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE hospitals_appointments
		SET emr_otp_code = $2,
		    emr_otp_expires_at = $3,
		    emr_access_granted = true,
		    emr_otp_sent_to_owner = $4,
		    emr_otp_sent_at = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		  AND NOT emr_access_revoked
		  AND NOT emr_otp_verified
		  AND ($7 OR emr_otp_code IS NULL OR emr_otp_expires_at < $6)
		RETURNING `+appointmentColumns,
		id, in.Code, in.ExpiresAt, in.SentToOwner, sentAt, in.IssuedAt, in.Resend)

	return scanAppointment(row)
}

// VerifyOTP updates the target row and its same-day siblings in one
// transaction. Siblings receive the verified code and expiry so that every
// verified row also carries an issued code.
func (r *PgRepository) VerifyOTP(ctx context.Context, id uuid.UUID, code string, at time.Time) (*Appointment, []uuid.UUID, error) {
	var (
		updated  *Appointment
		siblings []uuid.UUID
	)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE hospitals_appointments
			SET emr_otp_verified = true,
			    emr_otp_verified_at = $3,
			    emr_read_access_granted_at = COALESCE(emr_read_access_granted_at, $3),
			    emr_access_granted = true,
			    updated_at = now()
			WHERE id = $1
			  AND emr_otp_code = $2
			  AND emr_otp_expires_at >= $3
			  AND NOT emr_otp_verified
			  AND NOT emr_access_revoked
			  AND status NOT IN ('completed', 'cancelled', 'no-show')
			RETURNING `+appointmentColumns,
			id, code, at)

		a, err := scanAppointment(row)
		if err != nil {
			return err
		}
		updated = a

		rows, err := tx.Query(ctx, `
			UPDATE hospitals_appointments
			SET emr_otp_verified = true,
			    emr_otp_verified_at = $4,
			    emr_read_access_granted_at = COALESCE(emr_read_access_granted_at, $4),
			    emr_access_granted = true,
			    emr_otp_code = $5,
			    emr_otp_expires_at = $6,
			    updated_at = now()
			WHERE pet_platform_id = $1
			  AND appointment_date = $2::date
			  AND id <> $3
			  AND status IN ('scheduled', 'confirmed')
			  AND NOT emr_access_revoked
			  AND NOT emr_otp_verified
			RETURNING id`,
			a.PetPlatformID, a.Date.Format(time.DateOnly), a.ID, at, code, a.EMR.OTPExpiresAt)
		if err != nil {
			return fmt.Errorf("propagate verification: %w", err)
		}

		siblings, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("propagate verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return updated, siblings, nil
}

func (r *PgRepository) StartConsultation(ctx context.Context, id uuid.UUID, today, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hospitals_appointments
		SET status = 'in-progress',
		    emr_write_access_active = true,
		    emr_write_access_started_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND appointment_date <= $2::date
		  AND status IN ('scheduled', 'confirmed')
		  AND emr_otp_verified
		  AND NOT emr_access_revoked
		  AND NOT emr_write_access_active
		RETURNING `+appointmentColumns,
		id, today.Format(time.DateOnly), at)

	return scanAppointment(row)
}

func (r *PgRepository) EndConsultation(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hospitals_appointments
		SET status = 'completed',
		    emr_write_access_active = false,
		    emr_write_access_ended_at = CASE WHEN emr_write_access_active THEN $2 ELSE emr_write_access_ended_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'in-progress'
		  AND (emr_write_access_active OR emr_access_revoked)
		RETURNING `+appointmentColumns,
		id, at)

	return scanAppointment(row)
}

func (r *PgRepository) Revoke(ctx context.Context, id uuid.UUID, rv Revocation) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hospitals_appointments
		SET emr_access_revoked = true,
		    emr_access_revoked_at = $2,
		    emr_access_revoked_by = $3,
		    emr_revocation_reason = NULLIF($4, ''),
		    emr_write_access_active = false,
		    emr_write_access_ended_at = CASE WHEN emr_write_access_active THEN $2 ELSE emr_write_access_ended_at END,
		    updated_at = now()
		WHERE id = $1
		  AND NOT emr_access_revoked
		  AND status NOT IN ('completed', 'cancelled', 'no-show')
		RETURNING `+appointmentColumns,
		id, rv.At, rv.By, rv.Reason)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
