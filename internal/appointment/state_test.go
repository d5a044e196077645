package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusPredicates(t *testing.T) {
	for _, st := range []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, st.Terminal(), st)
		assert.False(t, st.open(), st)
	}
	assert.True(t, StatusScheduled.open())
	assert.True(t, StatusConfirmed.open())
	assert.False(t, StatusInProgress.open())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, AppointmentStatus("archived").Valid())
}

func TestOTPOutstanding(t *testing.T) {
	now := time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.False(t, EMRAccess{}.otpOutstanding(now))
	assert.True(t, EMRAccess{OTPCode: strPtr("123456"), OTPExpiresAt: &later}.otpOutstanding(now))
	assert.False(t, EMRAccess{OTPCode: strPtr("123456"), OTPExpiresAt: &earlier}.otpOutstanding(now))
	assert.False(t, EMRAccess{OTPCode: strPtr("123456"), OTPExpiresAt: &later, OTPVerified: true}.otpOutstanding(now))
}

func TestCheckOTP_Order(t *testing.T) {
	now := time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)

	a := &Appointment{Status: StatusScheduled}
	assert.ErrorIs(t, a.checkOTP("123456", now), ErrOTPNotIssued)

	a.EMR.OTPCode = strPtr("123456")
	a.EMR.OTPExpiresAt = &expired
	assert.ErrorIs(t, a.checkOTP("654321", now), ErrInvalidOTP)
	assert.ErrorIs(t, a.checkOTP("123456", now), ErrOTPExpired)
	assert.ErrorIs(t, a.checkOTP(" 123456 ", now), ErrOTPExpired)

	a.EMR.Revoked = true
	assert.ErrorIs(t, a.checkOTP("123456", now), ErrEMRAccessRevoked)

	a.Status = StatusCancelled
	assert.ErrorIs(t, a.checkOTP("123456", now), ErrInvalidStatusTransition)
}

func TestCanStartConsultation_FutureCheckedFirst(t *testing.T) {
	today := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	a := &Appointment{Status: StatusScheduled, Date: today.AddDate(0, 0, 1)}

	assert.ErrorIs(t, a.canStartConsultation(today), ErrFutureConsultation)

	a.Date = today
	assert.ErrorIs(t, a.canStartConsultation(today), ErrOTPNotVerified)

	a.EMR.OTPVerified = true
	assert.NoError(t, a.canStartConsultation(today))

	a.Date = today.AddDate(0, 0, -2)
	assert.NoError(t, a.canStartConsultation(today), "late consultations are allowed")
}
