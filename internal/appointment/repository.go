package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by Insert when another live appointment already
	// holds the staff member's slot.
	ErrSlotTaken = errors.New("slot already booked")
)

// OTPIssue is the set of fields written when a code is issued.
type OTPIssue struct {
	Code        string
	ExpiresAt   time.Time
	SentToOwner bool
	IssuedAt    time.Time
	// Resend allows replacing a still-valid unverified code.
	Resend bool
}

// Revocation describes who withdrew EMR access and why.
type Revocation struct {
	By     string
	Reason string
	At     time.Time
}

// Repository contains all DB interactions needed by the service.
//
// Every mutating method is a conditional update: when the row exists but no
// longer satisfies the transition guard it returns ErrAppointmentNotFound and
// the service re-reads the row to explain the miss.
type Repository interface {
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f Filter) ([]Appointment, error)
	ListAccessGrantedByPet(ctx context.Context, petID string) ([]Appointment, error)

	// No-show sweep
	FindPastOpen(ctx context.Context, before time.Time) ([]Appointment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)
	IssueOTP(ctx context.Context, id uuid.UUID, in OTPIssue) (*Appointment, error)
	// VerifyOTP marks the appointment verified and fans the verification out to
	// the pet's other open appointments on the same date, in one transaction.
	// It returns the updated row and the ids of the siblings it touched.
	VerifyOTP(ctx context.Context, id uuid.UUID, code string, at time.Time) (*Appointment, []uuid.UUID, error)
	// StartConsultation refuses rows dated after today.
	StartConsultation(ctx context.Context, id uuid.UUID, today, at time.Time) (*Appointment, error)
	EndConsultation(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	Revoke(ctx context.Context, id uuid.UUID, r Revocation) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
