package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/directory"
)

// GetDetail retrieves an appointment hydrated with its pet, owner and doctor.
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	details, err := s.hydrate(ctx, []Appointment{*appt})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// List returns appointments matching f ordered by date and time.
func (s *Service) List(ctx context.Context, f Filter) ([]AppointmentDetail, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Term = strings.TrimSpace(f.Term)

	appts, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.hydrate(ctx, appts)
}

// PetEMRAccess lists the pet's appointments that currently hold EMR access.
func (s *Service) PetEMRAccess(ctx context.Context, petID string) ([]Appointment, error) {
	petID = strings.TrimSpace(petID)
	if petID == "" {
		return nil, ErrPetRequired
	}

	appts, err := s.repo.ListAccessGrantedByPet(ctx, petID)
	if err != nil {
		return nil, fmt.Errorf("list pet emr access: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

func (s *Service) hydrate(ctx context.Context, appts []Appointment) ([]AppointmentDetail, error) {
	out := make([]AppointmentDetail, 0, len(appts))
	if len(appts) == 0 {
		return out, nil
	}

	petIDs := make([]string, 0, len(appts))
	ownerIDs := make([]string, 0, len(appts))
	for _, a := range appts {
		petIDs = append(petIDs, a.PetPlatformID)
		ownerIDs = append(ownerIDs, a.OwnerPlatformID)
	}

	pets, err := s.dir.PetsByIDs(ctx, petIDs)
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}
	owners, err := s.dir.OwnersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("load owners: %w", err)
	}

	petByID := make(map[string]*directory.Pet, len(pets))
	for i := range pets {
		petByID[pets[i].PlatformID] = &pets[i]
	}
	ownerByID := make(map[string]*directory.Owner, len(owners))
	for i := range owners {
		ownerByID[owners[i].PlatformID] = &owners[i]
	}

	doctors := make(map[string]*directory.StaffAssignment)
	for _, a := range appts {
		key := a.EntityPlatformID + "|" + a.StaffAssignmentID
		doctor, seen := doctors[key]
		if !seen {
			doctor, err = s.dir.StaffMember(ctx, a.EntityPlatformID, a.StaffAssignmentID)
			if err != nil && !errors.Is(err, directory.ErrStaffNotFound) {
				return nil, fmt.Errorf("load staff: %w", err)
			}
			doctors[key] = doctor
		}

		out = append(out, AppointmentDetail{
			Appointment: a,
			Pet:         petByID[a.PetPlatformID],
			Owner:       ownerByID[a.OwnerPlatformID],
			Doctor:      doctor,
		})
	}

	return out, nil
}
