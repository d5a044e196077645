package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// MinQueryLength is the shortest query that reaches the store.
	MinQueryLength = 2
	// matchLimit caps each fuzzy match the way the dashboard did.
	matchLimit = 10
)

type Service struct {
	store Store
	staff StaffSource
	slots SlotSource
	log   *zap.Logger
}

func NewService(store Store, staff StaffSource, slots SlotSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		staff: staff,
		slots: slots,
		log:   log,
	}
}

// Search runs the unified pet/owner lookup: pets matched directly, plus all pets
// of matched owners, deduplicated by pet platform id and paired with their owner.
func (s *Service) Search(ctx context.Context, query string) ([]PetMatch, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []PetMatch{}, nil
	}

	petsByPet, err := s.store.SearchPets(ctx, query, matchLimit)
	if err != nil {
		return nil, fmt.Errorf("search pets: %w", err)
	}

	owners, err := s.store.SearchOwners(ctx, query, matchLimit)
	if err != nil {
		return nil, fmt.Errorf("search owners: %w", err)
	}

	var petsByOwner []Pet
	if ownerIDs := ownerPlatformIDs(owners); len(ownerIDs) > 0 {
		petsByOwner, err = s.store.PetsByOwners(ctx, ownerIDs)
		if err != nil {
			return nil, fmt.Errorf("pets by owners: %w", err)
		}
	}

	pets := unionPets(petsByPet, petsByOwner)
	if len(pets) == 0 {
		return []PetMatch{}, nil
	}

	var referenced []string
	seen := make(map[string]struct{})
	for _, p := range pets {
		if p.OwnerPlatformID == "" {
			continue
		}
		if _, ok := seen[p.OwnerPlatformID]; ok {
			continue
		}
		seen[p.OwnerPlatformID] = struct{}{}
		referenced = append(referenced, p.OwnerPlatformID)
	}

	byID := make(map[string]Owner)
	if len(referenced) > 0 {
		resolved, err := s.store.OwnersByIDs(ctx, referenced)
		if err != nil {
			return nil, fmt.Errorf("owners by ids: %w", err)
		}
		for _, o := range resolved {
			byID[o.PlatformID] = o
		}
	}

	out := make([]PetMatch, 0, len(pets))
	for _, p := range pets {
		m := PetMatch{Pet: p}
		if o, ok := byID[p.OwnerPlatformID]; ok && p.OwnerPlatformID != "" {
			owner := o
			m.Owner = &owner
		}
		m.Ownerless = m.Owner == nil
		out = append(out, m)
	}

	s.log.Debug("directory search",
		zap.String("query", query),
		zap.Int("pets_by_pet", len(petsByPet)),
		zap.Int("pets_by_owner", len(petsByOwner)),
		zap.Int("results", len(out)),
	)

	return out, nil
}

// SearchEntities matches hospital entities by name or platform id.
func (s *Service) SearchEntities(ctx context.Context, query string) ([]Entity, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []Entity{}, nil
	}
	entities, err := s.store.SearchEntities(ctx, query, matchLimit)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	return entities, nil
}

// Staff lists the bookable staff of an entity.
func (s *Service) Staff(ctx context.Context, entityID string) ([]StaffAssignment, error) {
	if entityID == "" {
		return []StaffAssignment{}, nil
	}
	staff, err := s.staff.EntityStaff(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("entity staff: %w", err)
	}
	return staff, nil
}

// StaffMember resolves one assignment of an entity.
func (s *Service) StaffMember(ctx context.Context, entityID, assignmentID string) (*StaffAssignment, error) {
	staff, err := s.Staff(ctx, entityID)
	if err != nil {
		return nil, err
	}
	for i := range staff {
		if staff[i].AssignmentID == assignmentID {
			return &staff[i], nil
		}
	}
	return nil, ErrStaffNotFound
}

// Slots asks the slot-availability procedure for one staff member and date.
// A missing selection yields no slots without a lookup.
func (s *Service) Slots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]Slot, error) {
	if entityID == "" || assignmentID == "" || date.IsZero() {
		return []Slot{}, nil
	}
	slots, err := s.slots.AvailableSlots(ctx, entityID, assignmentID, date)
	if err != nil {
		return nil, fmt.Errorf("available slots: %w", err)
	}
	return slots, nil
}

func (s *Service) GetPet(ctx context.Context, petID string) (*Pet, error) {
	return s.store.GetPet(ctx, petID)
}

func (s *Service) GetOwner(ctx context.Context, ownerID string) (*Owner, error) {
	return s.store.GetOwner(ctx, ownerID)
}

func (s *Service) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	return s.store.GetEntity(ctx, entityID)
}

func (s *Service) PetsByIDs(ctx context.Context, petIDs []string) ([]Pet, error) {
	if len(petIDs) == 0 {
		return nil, nil
	}
	return s.store.PetsByIDs(ctx, petIDs)
}

func (s *Service) OwnersByIDs(ctx context.Context, ownerIDs []string) ([]Owner, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	return s.store.OwnersByIDs(ctx, ownerIDs)
}

func ownerPlatformIDs(owners []Owner) []string {
	ids := make([]string, 0, len(owners))
	for _, o := range owners {
		if o.PlatformID != "" {
			ids = append(ids, o.PlatformID)
		}
	}
	return ids
}

// unionPets keeps first-seen order; a later duplicate replaces the stored row
// but not its position.
func unionPets(sets ...[]Pet) []Pet {
	index := make(map[string]int)
	var out []Pet
	for _, set := range sets {
		for _, p := range set {
			if p.PlatformID == "" {
				continue
			}
			if i, ok := index[p.PlatformID]; ok {
				out[i] = p
				continue
			}
			index[p.PlatformID] = len(out)
			out = append(out, p)
		}
	}
	return out
}
