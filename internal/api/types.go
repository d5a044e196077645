package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/directory"
)

type CreateAppointmentRequest struct {
	PetPlatformID     string `json:"pet_platform_id" validate:"required"`
	OwnerPlatformID   string `json:"owner_platform_id" validate:"required"`
	EntityPlatformID  string `json:"entity_platform_id" validate:"required"`
	StaffAssignmentID string `json:"staff_assignment_id" validate:"required"`
	Date              string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time              string `json:"appointment_time" validate:"required,datetime=15:04"`
	Type              string `json:"appointment_type" validate:"omitempty,oneof=routine vaccination follow-up emergency surgery dental grooming"`
	Reason            string `json:"reason" validate:"max=500"`
	Notes             string `json:"notes" validate:"max=2000"`
	BookingSource     string `json:"booking_source" validate:"omitempty,max=50"`
}

type IssueOTPRequest struct {
	// SelfService hands the code back to the caller instead of sending it.
	SelfService bool `json:"self_service"`
	Resend      bool `json:"resend"`
}

type VerifyOTPRequest struct {
	Code string `json:"otp_code" validate:"required,min=4,max=10"`
}

type RevokeRequest struct {
	RevokedBy string `json:"revoked_by"`
	Reason    string `json:"reason" validate:"max=500"`
}

// DraftRequest mirrors booking.Patch; absent fields are left untouched.
type DraftRequest struct {
	PetPlatformID     *string `json:"pet_platform_id"`
	OwnerPlatformID   *string `json:"owner_platform_id"`
	EntityPlatformID  *string `json:"entity_platform_id"`
	StaffAssignmentID *string `json:"staff_assignment_id"`
	StaffPlatformID   *string `json:"staff_platform_id"`
	Date              *string `json:"appointment_date"`
	Time              *string `json:"appointment_time"`
	Type              *string `json:"appointment_type" validate:"omitempty,oneof=routine vaccination follow-up emergency surgery dental grooming"`
	Reason            *string `json:"reason" validate:"omitempty,max=500"`
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
	Source            *string `json:"booking_source" validate:"omitempty,max=50"`
}

func (r DraftRequest) patch() booking.Patch {
	p := booking.Patch{
		PetPlatformID:     r.PetPlatformID,
		OwnerPlatformID:   r.OwnerPlatformID,
		EntityPlatformID:  r.EntityPlatformID,
		StaffAssignmentID: r.StaffAssignmentID,
		StaffPlatformID:   r.StaffPlatformID,
		Date:              r.Date,
		Time:              r.Time,
		Reason:            r.Reason,
		Notes:             r.Notes,
		Source:            r.Source,
	}
	if r.Type != nil {
		t := appointment.AppointmentType(*r.Type)
		p.Type = &t
	}
	return p
}

type EMRAccessResponse struct {
	OTPIssued            bool       `json:"otp_issued"`
	OTPExpiresAt         *time.Time `json:"otp_expires_at,omitempty"`
	AccessGranted        bool       `json:"access_granted"`
	OTPSentToOwner       bool       `json:"otp_sent_to_owner"`
	OTPSentAt            *time.Time `json:"otp_sent_at,omitempty"`
	OTPVerified          bool       `json:"otp_verified"`
	OTPVerifiedAt        *time.Time `json:"otp_verified_at,omitempty"`
	ReadAccessGrantedAt  *time.Time `json:"emr_read_access_granted_at,omitempty"`
	WriteAccessActive    bool       `json:"emr_write_access_active"`
	WriteAccessStartedAt *time.Time `json:"emr_write_access_started_at,omitempty"`
	WriteAccessEndedAt   *time.Time `json:"emr_write_access_ended_at,omitempty"`
	Revoked              bool       `json:"emr_access_revoked"`
	RevokedAt            *time.Time `json:"emr_access_revoked_at,omitempty"`
	RevokedBy            *string    `json:"emr_access_revoked_by,omitempty"`
	RevocationReason     *string    `json:"emr_access_revocation_reason,omitempty"`
}

// AppointmentResponse never carries the OTP code.
type AppointmentResponse struct {
	ID                uuid.UUID         `json:"id"`
	Number            string            `json:"appointment_number"`
	PetPlatformID     string            `json:"pet_platform_id"`
	OwnerPlatformID   string            `json:"owner_platform_id"`
	EntityPlatformID  string            `json:"entity_platform_id"`
	DoctorPlatformID  string            `json:"doctor_platform_id"`
	StaffAssignmentID string            `json:"staff_assignment_id"`
	Date              string            `json:"appointment_date"`
	Time              string            `json:"appointment_time"`
	DurationMinutes   int               `json:"duration_minutes"`
	Type              string            `json:"appointment_type"`
	Reason            string            `json:"reason,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Status            string            `json:"status"`
	BookingSource     string            `json:"booking_source"`
	EMR               EMRAccessResponse `json:"emr_access"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Pet    *directory.Pet             `json:"pet,omitempty"`
	Owner  *directory.Owner           `json:"owner,omitempty"`
	Doctor *directory.StaffAssignment `json:"doctor,omitempty"`
}

type IssueOTPResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Code        string              `json:"otp_code,omitempty"`
}

type VerifyOTPResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Propagated  []uuid.UUID         `json:"propagated_to"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	e := a.EMR
	return AppointmentResponse{
		ID:                a.ID,
		Number:            a.Number,
		PetPlatformID:     a.PetPlatformID,
		OwnerPlatformID:   a.OwnerPlatformID,
		EntityPlatformID:  a.EntityPlatformID,
		DoctorPlatformID:  a.DoctorPlatformID,
		StaffAssignmentID: a.StaffAssignmentID,
		Date:              a.Date.Format(time.DateOnly),
		Time:              a.Time,
		DurationMinutes:   a.DurationMinutes,
		Type:              string(a.Type),
		Reason:            a.Reason,
		Notes:             a.Notes,
		Status:            string(a.Status),
		BookingSource:     a.BookingSource,
		EMR: EMRAccessResponse{
			OTPIssued:            e.OTPCode != nil && *e.OTPCode != "",
			OTPExpiresAt:         e.OTPExpiresAt,
			AccessGranted:        e.AccessGranted,
			OTPSentToOwner:       e.OTPSentToOwner,
			OTPSentAt:            e.OTPSentAt,
			OTPVerified:          e.OTPVerified,
			OTPVerifiedAt:        e.OTPVerifiedAt,
			ReadAccessGrantedAt:  e.ReadAccessGrantedAt,
			WriteAccessActive:    e.WriteAccessActive,
			WriteAccessStartedAt: e.WriteAccessStartedAt,
			WriteAccessEndedAt:   e.WriteAccessEndedAt,
			Revoked:              e.Revoked,
			RevokedAt:            e.RevokedAt,
			RevokedBy:            e.RevokedBy,
			RevocationReason:     e.RevocationReason,
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	resp.Pet = d.Pet
	resp.Owner = d.Owner
	resp.Doctor = d.Doctor
	return resp
}
