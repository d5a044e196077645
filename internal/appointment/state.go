package appointment

import (
	"strings"
	"time"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// open is the pre-consultation pair from which cancellation, no-show and
// consultation start are allowed.
func (s AppointmentStatus) open() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (a *Appointment) canConfirm() error {
	if a.Status != StatusScheduled {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (a *Appointment) canCancel() error {
	if !a.Status.open() {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (a *Appointment) canMarkNoShow() error {
	if !a.Status.open() {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (a *Appointment) canIssueOTP(now time.Time, resend bool) error {
	if a.EMR.Revoked {
		return ErrEMRAccessRevoked
	}
	if a.Status != StatusScheduled {
		return ErrInvalidStatusTransition
	}
	if a.EMR.OTPVerified {
		return ErrOTPAlreadyVerified
	}
	if a.EMR.otpOutstanding(now) && !resend {
		return ErrOTPOutstanding
	}
	return nil
}

// checkOTP validates a submitted code. The code comparison runs before the
// expiry check so a wrong code is always reported as wrong.
func (a *Appointment) checkOTP(code string, now time.Time) error {
	if a.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	if a.EMR.Revoked {
		return ErrEMRAccessRevoked
	}
	if a.EMR.OTPCode == nil || *a.EMR.OTPCode == "" {
		return ErrOTPNotIssued
	}
	if !codesEqual(*a.EMR.OTPCode, strings.TrimSpace(code)) {
		return ErrInvalidOTP
	}
	if a.EMR.OTPExpiresAt != nil && now.After(*a.EMR.OTPExpiresAt) {
		return ErrOTPExpired
	}
	return nil
}

// canStartConsultation takes today's calendar date (midnight UTC) in the
// service time zone.
func (a *Appointment) canStartConsultation(today time.Time) error {
	if a.Date.After(today) {
		return ErrFutureConsultation
	}
	if a.EMR.Revoked {
		return ErrEMRAccessRevoked
	}
	if !a.Status.open() {
		return ErrInvalidStatusTransition
	}
	if !a.EMR.OTPVerified {
		return ErrOTPNotVerified
	}
	if a.EMR.WriteAccessActive {
		return ErrWriteAccessActive
	}
	return nil
}

// canEndConsultation also lets a revoked in-progress consultation complete;
// revocation has already closed its write access.
func (a *Appointment) canEndConsultation() error {
	if a.Status != StatusInProgress {
		return ErrInvalidStatusTransition
	}
	if !a.EMR.WriteAccessActive && !a.EMR.Revoked {
		return ErrWriteAccessInactive
	}
	return nil
}

func (a *Appointment) canRevoke() error {
	if a.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	if a.EMR.Revoked {
		return ErrEMRAccessRevoked
	}
	return nil
}
