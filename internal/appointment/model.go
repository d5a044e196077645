package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/directory"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no-show"
)

type AppointmentType string

const (
	TypeRoutine     AppointmentType = "routine"
	TypeVaccination AppointmentType = "vaccination"
	TypeFollowUp    AppointmentType = "follow-up"
	TypeEmergency   AppointmentType = "emergency"
	TypeSurgery     AppointmentType = "surgery"
	TypeDental      AppointmentType = "dental"
	TypeGrooming    AppointmentType = "grooming"
)

var validTypes = map[AppointmentType]bool{
	TypeRoutine: true, TypeVaccination: true, TypeFollowUp: true, TypeEmergency: true,
	TypeSurgery: true, TypeDental: true, TypeGrooming: true,
}

func (t AppointmentType) Valid() bool { return validTypes[t] }

const (
	SourceHospitalOnline = "hospital-online"
	SourceOwnerApp       = "owner-app"
)

// EMRAccess is the OTP / EMR-access sub-state of an appointment.
type EMRAccess struct {
	OTPCode              *string
	OTPExpiresAt         *time.Time
	AccessGranted        bool
	OTPSentToOwner       bool
	OTPSentAt            *time.Time
	OTPVerified          bool
	OTPVerifiedAt        *time.Time
	ReadAccessGrantedAt  *time.Time
	WriteAccessActive    bool
	WriteAccessStartedAt *time.Time
	WriteAccessEndedAt   *time.Time
	Revoked              bool
	RevokedAt            *time.Time
	RevokedBy            *string
	RevocationReason     *string
}

// otpOutstanding reports an issued, unverified, unexpired code.
func (e EMRAccess) otpOutstanding(now time.Time) bool {
	if e.OTPCode == nil || *e.OTPCode == "" || e.OTPVerified {
		return false
	}
	return e.OTPExpiresAt == nil || !now.After(*e.OTPExpiresAt)
}

type Appointment struct {
	ID                uuid.UUID
	Number            string
	PetPlatformID     string
	OwnerPlatformID   string
	EntityPlatformID  string
	DoctorPlatformID  string
	StaffAssignmentID string
	// Date is a calendar date stored at midnight UTC.
	Date            time.Time
	Time            string // HH:MM
	DurationMinutes int
	Type            AppointmentType
	Reason          string
	Notes           string
	Status          AppointmentStatus
	BookingSource   string
	EMR             EMRAccess
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Pet    *directory.Pet
	Owner  *directory.Owner
	Doctor *directory.StaffAssignment
}

// Filter is the explicit query for List. Zero fields do not filter.
type Filter struct {
	EntityPlatformID string
	OwnerPlatformID  string
	PetPlatformID    string
	Status           AppointmentStatus
	StartDate        *time.Time
	EndDate          *time.Time
	Term             string
	Limit            int
	Offset           int
}

// DateOnly truncates t to its calendar date in loc, expressed at midnight UTC.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
