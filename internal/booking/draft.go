package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/directory"
)

var (
	ErrSlotsNotLoaded = errors.New("no slots loaded for the current selection")
	ErrSlotNotOffered = errors.New("time is not an available slot")
)

// Draft is the staff-assisted booking form. Every field is an explicit
// selection; changing a selection clears the ones that depend on it.
type Draft struct {
	ID                string                      `json:"id"`
	PetPlatformID     string                      `json:"pet_platform_id,omitempty"`
	OwnerPlatformID   string                      `json:"owner_platform_id,omitempty"`
	EntityPlatformID  string                      `json:"entity_platform_id,omitempty"`
	StaffAssignmentID string                      `json:"staff_assignment_id,omitempty"`
	StaffPlatformID   string                      `json:"staff_platform_id,omitempty"`
	Date              string                      `json:"date,omitempty"` // YYYY-MM-DD
	Time              string                      `json:"time,omitempty"`
	Type              appointment.AppointmentType `json:"type,omitempty"`
	Reason            string                      `json:"reason,omitempty"`
	Notes             string                      `json:"notes,omitempty"`
	Source            string                      `json:"source,omitempty"`

	Slots []directory.Slot `json:"slots"`
	// Generation increases on every selection change that invalidates slots.
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewDraft() *Draft {
	return &Draft{
		ID:     uuid.NewString(),
		Type:   appointment.TypeRoutine,
		Source: appointment.SourceHospitalOnline,
		Slots:  []directory.Slot{},
	}
}

func (d *Draft) invalidateSlots() {
	d.Time = ""
	d.Slots = []directory.Slot{}
	d.Generation++
}

// SelectPet sets the pet and its owner together.
func (d *Draft) SelectPet(petID, ownerID string) {
	d.PetPlatformID = strings.TrimSpace(petID)
	d.OwnerPlatformID = strings.TrimSpace(ownerID)
}

// SetEntity changes the hospital and clears staff, time and slots.
func (d *Draft) SetEntity(entityID string) {
	entityID = strings.TrimSpace(entityID)
	if entityID == d.EntityPlatformID {
		return
	}
	d.EntityPlatformID = entityID
	d.StaffAssignmentID = ""
	d.StaffPlatformID = ""
	d.invalidateSlots()
}

func (d *Draft) SetStaff(assignmentID, platformID string) {
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == d.StaffAssignmentID {
		return
	}
	d.StaffAssignmentID = assignmentID
	d.StaffPlatformID = strings.TrimSpace(platformID)
	d.invalidateSlots()
}

func (d *Draft) SetDate(date string) error {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return appointment.ErrDateRequired
		}
	}
	if date == d.Date {
		return nil
	}
	d.Date = date
	d.invalidateSlots()
	return nil
}

// SlotQuery reports the current selection to fetch slots for. ok is false
// while entity, staff or date is missing.
func (d *Draft) SlotQuery() (entityID, assignmentID string, date time.Time, ok bool) {
	if d.EntityPlatformID == "" || d.StaffAssignmentID == "" || d.Date == "" {
		return "", "", time.Time{}, false
	}
	date, err := time.Parse(time.DateOnly, d.Date)
	if err != nil {
		return "", "", time.Time{}, false
	}
	return d.EntityPlatformID, d.StaffAssignmentID, date, true
}

// ApplySlots stores a slot result fetched under generation gen. A result from
// an older generation is discarded and ApplySlots returns false.
func (d *Draft) ApplySlots(gen uint64, slots []directory.Slot) bool {
	if gen != d.Generation {
		return false
	}
	if slots == nil {
		slots = []directory.Slot{}
	}
	d.Slots = slots
	if d.Time != "" && !offered(slots, d.Time) {
		d.Time = ""
	}
	return true
}

// ChooseSlot accepts only a time present and available in the current result.
func (d *Draft) ChooseSlot(at string) error {
	if len(d.Slots) == 0 {
		return ErrSlotsNotLoaded
	}
	at = strings.TrimSpace(at)
	if !offered(d.Slots, at) {
		return ErrSlotNotOffered
	}
	d.Time = at
	return nil
}

func offered(slots []directory.Slot, at string) bool {
	for _, s := range slots {
		if s.Time == at {
			return s.Available
		}
	}
	return false
}

// Validate reports the first missing selection.
func (d *Draft) Validate() error {
	switch {
	case d.PetPlatformID == "":
		return appointment.ErrPetRequired
	case d.OwnerPlatformID == "":
		return appointment.ErrOwnerRequired
	case d.EntityPlatformID == "":
		return appointment.ErrEntityRequired
	case d.StaffAssignmentID == "":
		return appointment.ErrStaffRequired
	case d.Date == "":
		return appointment.ErrDateRequired
	case d.Time == "":
		return appointment.ErrTimeRequired
	}
	return nil
}

func (d *Draft) CreateInput() (appointment.CreateInput, error) {
	if err := d.Validate(); err != nil {
		return appointment.CreateInput{}, err
	}
	date, err := time.Parse(time.DateOnly, d.Date)
	if err != nil {
		return appointment.CreateInput{}, appointment.ErrDateRequired
	}
	return appointment.CreateInput{
		PetPlatformID:     d.PetPlatformID,
		OwnerPlatformID:   d.OwnerPlatformID,
		EntityPlatformID:  d.EntityPlatformID,
		StaffAssignmentID: d.StaffAssignmentID,
		Date:              date,
		Time:              d.Time,
		Type:              d.Type,
		Reason:            d.Reason,
		Notes:             d.Notes,
		BookingSource:     d.Source,
	}, nil
}

type SlotLister interface {
	Slots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]directory.Slot, error)
}
