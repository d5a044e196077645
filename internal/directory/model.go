package directory

import "time"

// Pet is a pet_master row.
type Pet struct {
	PlatformID      string    `json:"pet_platform_id"`
	OwnerPlatformID string    `json:"user_platform_id,omitempty"`
	Name            string    `json:"name"`
	Species         string    `json:"species"`
	Breed           string    `json:"breed"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Owner is a profiles row.
type Owner struct {
	PlatformID string  `json:"user_platform_id"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

func (o Owner) FullName() string {
	switch {
	case o.FirstName == "":
		return o.LastName
	case o.LastName == "":
		return o.FirstName
	}
	return o.FirstName + " " + o.LastName
}

// Entity is a hospital_master row.
type Entity struct {
	PlatformID string `json:"entity_platform_id"`
	Name       string `json:"entity_name"`
	City       string `json:"city,omitempty"`
}

// StaffAssignment binds an employee to a role at one entity.
type StaffAssignment struct {
	AssignmentID        string  `json:"assignment_id"`
	EmployeeID          string  `json:"employee_id"`
	PlatformID          string  `json:"user_platform_id"`
	EntityPlatformID    string  `json:"entity_platform_id"`
	FullName            string  `json:"full_name"`
	JobTitle            string  `json:"job_title"`
	RoleType            string  `json:"role_type"`
	SlotDurationMinutes int     `json:"slot_duration_minutes"`
	ProfessionalEmail   *string `json:"professional_email,omitempty"`
}

// Slot is one bookable start time returned by the slot-availability procedure.
type Slot struct {
	Time         string `json:"time"`
	Available    bool   `json:"is_available"`
	BookingCount int    `json:"booking_count"`
}

// PetMatch is one unified search result. Owner is nil when the pet has no
// resolvable owner; such pets cannot be booked.
type PetMatch struct {
	Pet       Pet    `json:"pet"`
	Owner     *Owner `json:"owner"`
	Ownerless bool   `json:"ownerless"`
}
