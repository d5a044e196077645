package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/appointment"
)

// Patch carries the form fields a caller wants to change. Nil fields are
// left as they are.
type Patch struct {
	PetPlatformID     *string
	OwnerPlatformID   *string
	EntityPlatformID  *string
	StaffAssignmentID *string
	StaffPlatformID   *string
	Date              *string
	Time              *string
	Type              *appointment.AppointmentType
	Reason            *string
	Notes             *string
	Source            *string
}

// Apply changes selections in dependency order so that a patch setting both
// an entity and a staff member keeps the staff member.
func (d *Draft) Apply(p Patch) error {
	if p.PetPlatformID != nil || p.OwnerPlatformID != nil {
		pet, owner := d.PetPlatformID, d.OwnerPlatformID
		if p.PetPlatformID != nil {
			pet = *p.PetPlatformID
		}
		if p.OwnerPlatformID != nil {
			owner = *p.OwnerPlatformID
		}
		d.SelectPet(pet, owner)
	}
	if p.EntityPlatformID != nil {
		d.SetEntity(*p.EntityPlatformID)
	}
	if p.StaffAssignmentID != nil {
		platformID := ""
		if p.StaffPlatformID != nil {
			platformID = *p.StaffPlatformID
		}
		d.SetStaff(*p.StaffAssignmentID, platformID)
	}
	if p.Date != nil {
		if err := d.SetDate(*p.Date); err != nil {
			return err
		}
	}
	if p.Time != nil {
		if strings.TrimSpace(*p.Time) == "" {
			d.Time = ""
		} else if err := d.ChooseSlot(*p.Time); err != nil {
			return err
		}
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return appointment.ErrInvalidType
		}
		d.Type = *p.Type
	}
	if p.Reason != nil {
		d.Reason = strings.TrimSpace(*p.Reason)
	}
	if p.Notes != nil {
		d.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.Source != nil && *p.Source != "" {
		d.Source = *p.Source
	}
	return nil
}

type AppointmentCreator interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
}

// Service drives the booking wizard on top of a draft store.
type Service struct {
	store   Store
	slots   SlotLister
	creator AppointmentCreator
	log     *zap.Logger
}

func NewService(store Store, slots SlotLister, creator AppointmentCreator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, slots: slots, creator: creator, log: log}
}

func (s *Service) Start(ctx context.Context, p Patch) (*Draft, error) {
	d := NewDraft()
	if err := d.Apply(p); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Draft, error) {
	return s.store.Load(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Draft, error) {
	return s.store.Update(ctx, id, func(d *Draft) error {
		return d.Apply(p)
	})
}

// RefreshSlots fetches slots for the draft's current selection. The lookup
// runs outside the store transaction; if the selection changed meanwhile the
// result is dropped and the draft is returned as it now stands.
func (s *Service) RefreshSlots(ctx context.Context, id string) (*Draft, error) {
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	entityID, assignmentID, date, ok := d.SlotQuery()
	if !ok {
		return d, nil
	}
	gen := d.Generation

	slots, err := s.slots.Slots(ctx, entityID, assignmentID, date)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	return s.store.Update(ctx, id, func(cur *Draft) error {
		if !cur.ApplySlots(gen, slots) {
			s.log.Debug("stale slot result dropped",
				zap.String("draft_id", id),
				zap.Uint64("fetched_generation", gen),
				zap.Uint64("current_generation", cur.Generation),
			)
		}
		return nil
	})
}

// Submit books the drafted appointment and discards the draft on success.
func (s *Service) Submit(ctx context.Context, id string) (*appointment.Appointment, error) {
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := d.CreateInput()
	if err != nil {
		return nil, err
	}

	appt, err := s.creator.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn("failed to delete submitted draft", zap.String("draft_id", id), zap.Error(err))
	}
	return appt, nil
}
