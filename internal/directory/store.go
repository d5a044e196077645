package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPetNotFound    = errors.New("pet not found")
	ErrOwnerNotFound  = errors.New("owner not found")
	ErrEntityNotFound = errors.New("hospital entity not found")
	ErrStaffNotFound  = errors.New("staff assignment not found")
)

// Store is the read side of the directory tables.
type Store interface {
	// Fuzzy matches are case-insensitive substring matches.
	SearchPets(ctx context.Context, term string, limit int) ([]Pet, error)
	SearchOwners(ctx context.Context, term string, limit int) ([]Owner, error)
	SearchEntities(ctx context.Context, term string, limit int) ([]Entity, error)

	PetsByOwners(ctx context.Context, ownerIDs []string) ([]Pet, error)
	PetsByIDs(ctx context.Context, petIDs []string) ([]Pet, error)
	OwnersByIDs(ctx context.Context, ownerIDs []string) ([]Owner, error)

	GetPet(ctx context.Context, petID string) (*Pet, error)
	GetOwner(ctx context.Context, ownerID string) (*Owner, error)
	GetEntity(ctx context.Context, entityID string) (*Entity, error)
}

// StaffSource is the staff-directory procedure.
type StaffSource interface {
	EntityStaff(ctx context.Context, entityID string) ([]StaffAssignment, error)
}

// SlotSource is the external slot-availability procedure.
type SlotSource interface {
	AvailableSlots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]Slot, error)
}
