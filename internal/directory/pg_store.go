package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore reads the directory tables and calls the rostering procedures.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const petColumns = `pet_platform_id, COALESCE(user_platform_id, ''), name, species, breed, is_active, created_at`

const ownerColumns = `user_platform_id, first_name, last_name, email, phone`

func scanPet(row pgx.Row) (*Pet, error) {
	var p Pet
	err := row.Scan(
		&p.PlatformID,
		&p.OwnerPlatformID,
		&p.Name,
		&p.Species,
		&p.Breed,
		&p.IsActive,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanOwner(row pgx.Row) (*Owner, error) {
	var o Owner
	err := row.Scan(
		&o.PlatformID,
		&o.FirstName,
		&o.LastName,
		&o.Email,
		&o.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return &o, nil
}

func collectPets(rows pgx.Rows) ([]Pet, error) {
	defer rows.Close()
	var out []Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func collectOwners(rows pgx.Rows) ([]Owner, error) {
	defer rows.Close()
	var out []Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// likePattern wraps term for a substring ILIKE, escaping LIKE metacharacters.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func (s *PgStore) SearchPets(ctx context.Context, term string, limit int) ([]Pet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+petColumns+`
		FROM pet_master
		WHERE name ILIKE $1
		   OR pet_platform_id ILIKE $1
		   OR species ILIKE $1
		   OR breed ILIKE $1
		ORDER BY name
		LIMIT $2
	`, likePattern(term), limit)
	if err != nil {
		return nil, err
	}
	return collectPets(rows)
}

func (s *PgStore) SearchOwners(ctx context.Context, term string, limit int) ([]Owner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ownerColumns+`
		FROM profiles
		WHERE first_name ILIKE $1
		   OR last_name ILIKE $1
		   OR email ILIKE $1
		   OR user_platform_id ILIKE $1
		ORDER BY last_name, first_name
		LIMIT $2
	`, likePattern(term), limit)
	if err != nil {
		return nil, err
	}
	return collectOwners(rows)
}

func (s *PgStore) SearchEntities(ctx context.Context, term string, limit int) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_platform_id, entity_name, city
		FROM hospital_master
		WHERE entity_name ILIKE $1
		   OR entity_platform_id ILIKE $1
		ORDER BY entity_name
		LIMIT $2
	`, likePattern(term), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.PlatformID, &e.Name, &e.City); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgStore) PetsByOwners(ctx context.Context, ownerIDs []string) ([]Pet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+petColumns+`
		FROM pet_master
		WHERE user_platform_id = ANY($1)
		ORDER BY name
	`, ownerIDs)
	if err != nil {
		return nil, err
	}
	return collectPets(rows)
}

func (s *PgStore) PetsByIDs(ctx context.Context, petIDs []string) ([]Pet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+petColumns+`
		FROM pet_master
		WHERE pet_platform_id = ANY($1)
	`, petIDs)
	if err != nil {
		return nil, err
	}
	return collectPets(rows)
}

func (s *PgStore) OwnersByIDs(ctx context.Context, ownerIDs []string) ([]Owner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ownerColumns+`
		FROM profiles
		WHERE user_platform_id = ANY($1)
	`, ownerIDs)
	if err != nil {
		return nil, err
	}
	return collectOwners(rows)
}

func (s *PgStore) GetPet(ctx context.Context, petID string) (*Pet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+petColumns+`
		FROM pet_master
		WHERE pet_platform_id = $1
	`, petID)
	return scanPet(row)
}

func (s *PgStore) GetOwner(ctx context.Context, ownerID string) (*Owner, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ownerColumns+`
		FROM profiles
		WHERE user_platform_id = $1
	`, ownerID)
	return scanOwner(row)
}

func (s *PgStore) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	var e Entity
	err := s.pool.QueryRow(ctx, `
		SELECT entity_platform_id, entity_name, city
		FROM hospital_master
		WHERE entity_platform_id = $1
	`, entityID).Scan(&e.PlatformID, &e.Name, &e.City)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	return &e, nil
}

// EntityStaff calls get_entity_appointment_staff.
func (s *PgStore) EntityStaff(ctx context.Context, entityID string) ([]StaffAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT assignment_id, employee_id, user_platform_id, full_name,
		       job_title, role_type, slot_duration_minutes, professional_email
		FROM get_entity_appointment_staff($1)
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaffAssignment
	for rows.Next() {
		sa := StaffAssignment{EntityPlatformID: entityID}
		if err := rows.Scan(
			&sa.AssignmentID,
			&sa.EmployeeID,
			&sa.PlatformID,
			&sa.FullName,
			&sa.JobTitle,
			&sa.RoleType,
			&sa.SlotDurationMinutes,
			&sa.ProfessionalEmail,
		); err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// AvailableSlots calls get_employee_available_slots.
func (s *PgStore) AvailableSlots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_time, is_available, booking_count
		FROM get_employee_available_slots($1, $2, $3::date)
	`, entityID, assignmentID, date.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("get_employee_available_slots: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		var sl Slot
		if err := rows.Scan(&sl.Time, &sl.Available, &sl.BookingCount); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}
