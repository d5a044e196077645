package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/gateway"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

func sampleAppointment() *appointment.Appointment {
	code := "482913"
	expires := time.Date(2025, 10, 21, 8, 0, 0, 0, time.UTC)
	return &appointment.Appointment{
		ID:                uuid.MustParse("7f1d1c4e-3a52-4d0a-9f59-2b8e0f6b1a01"),
		Number:            "APT-20251020-K7M2Q9",
		PetPlatformID:     "P1",
		OwnerPlatformID:   "O1",
		EntityPlatformID:  "E1",
		DoctorPlatformID:  "U-S1",
		StaffAssignmentID: "S1",
		Date:              time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC),
		Time:              "09:20",
		DurationMinutes:   20,
		Type:              appointment.TypeRoutine,
		Status:            appointment.StatusScheduled,
		BookingSource:     appointment.SourceHospitalOnline,
		EMR: appointment.EMRAccess{
			OTPCode:      &code,
			OTPExpiresAt: &expires,
		},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name       string
		pg, redis  error
		wantCode   int
		wantStatus string
	}{
		{"all up", nil, nil, http.StatusOK, "ok"},
		{"redis down", nil, errPingDown, http.StatusOK, "degraded"},
		{"postgres down", errPingDown, nil, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{
				Postgres: fakePinger{err: tc.pg},
				Redis:    fakePinger{err: tc.redis},
				Env:      "test",
				Version:  "1.0.0",
			})

			rec := do(t, h, http.MethodGet, "/health/ready", "")
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantStatus, decodeBody(t, rec)["status"])
		})
	}

	rec := do(t, NewRouter(RouterConfig{}), http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointment(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc})

	rec := do(t, h, http.MethodPost, "/appointments", `{
		"pet_platform_id": "P1",
		"owner_platform_id": "O1",
		"entity_platform_id": "E1",
		"staff_assignment_id": "S1",
		"appointment_date": "2025-10-20",
		"appointment_time": "09:20",
		"appointment_type": "vaccination",
		"reason": "annual shots"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "P1", svc.created.PetPlatformID)
	assert.Equal(t, "S1", svc.created.StaffAssignmentID)
	assert.Equal(t, time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC), svc.created.Date)
	assert.Equal(t, appointment.TypeVaccination, svc.created.Type)

	body := decodeBody(t, rec)
	assert.Equal(t, "APT-20251020-K7M2Q9", body["appointment_number"])
	assert.Equal(t, "2025-10-20", body["appointment_date"])
	assert.NotContains(t, rec.Body.String(), "482913", "code never leaves through appointment responses")
	emr := body["emr_access"].(map[string]any)
	assert.Equal(t, true, emr["otp_issued"])
}

func TestCreateAppointment_RejectsBadInput(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc})

	rec := do(t, h, http.MethodPost, "/appointments", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeBody(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/appointments", `{"owner_platform_id":"O1","entity_platform_id":"E1","staff_assignment_id":"S1","appointment_date":"2025-10-20","appointment_time":"9am"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, body["details"], "pet_platform_id is required")
	assert.Contains(t, body["details"], "appointment_time must match 15:04")

	assert.Empty(t, svc.calls, "service is not reached on malformed input")
}

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{appointment.ErrPetRequired, http.StatusBadRequest, "validation_failed"},
		{appointment.ErrPastDate, http.StatusBadRequest, "validation_failed"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{fmt.Errorf("lookup: %w", directory.ErrPetNotFound), http.StatusNotFound, "pet_not_found"},
		{directory.ErrStaffNotFound, http.StatusNotFound, "staff_not_found"},
		{booking.ErrDraftNotFound, http.StatusNotFound, "draft_not_found"},
		{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{redisclient.ErrLockNotAcquired, http.StatusConflict, "slot_being_booked"},
		{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{appointment.ErrVerificationBusy, http.StatusConflict, "verification_busy"},
		{booking.ErrDraftConflict, http.StatusConflict, "draft_conflict"},
		{appointment.ErrPetOwnerMismatch, http.StatusUnprocessableEntity, "pet_owner_mismatch"},
		{appointment.ErrInvalidOTP, http.StatusUnprocessableEntity, "invalid_otp"},
		{appointment.ErrOTPExpired, http.StatusUnprocessableEntity, "otp_expired"},
		{appointment.ErrOTPOutstanding, http.StatusUnprocessableEntity, "otp_outstanding"},
		{appointment.ErrEMRAccessRevoked, http.StatusUnprocessableEntity, "emr_access_revoked"},
		{appointment.ErrFutureConsultation, http.StatusUnprocessableEntity, "future_consultation"},
		{booking.ErrSlotNotOffered, http.StatusUnprocessableEntity, "slot_not_offered"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleServiceError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Equal(t, tc.name, decodeBody(t, rec)["error"], tc.err.Error())
	}

	rec := httptest.NewRecorder()
	handleServiceError(rec, errors.New(`insert appointment: ERROR: relation "appointments" does not exist`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, `insert appointment: ERROR: relation "appointments" does not exist`, decodeBody(t, rec)["details"])
}

func TestTransitions(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc})
	id := svc.appt.ID.String()

	for _, action := range []string{"confirm", "cancel", "no-show", "consultation/start", "consultation/end"} {
		rec := do(t, h, http.MethodPost, "/appointments/"+id+"/"+action, "")
		assert.Equal(t, http.StatusOK, rec.Code, action)
	}
	assert.Equal(t, []string{"confirm", "cancel", "no-show", "start", "end"}, svc.calls)

	rec := do(t, h, http.MethodPost, "/appointments/not-a-uuid/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = appointment.ErrInvalidStatusTransition
	rec = do(t, h, http.MethodPost, "/appointments/"+id+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIssueOTP(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment(), code: "482913"}
	h := NewRouter(RouterConfig{Appointments: svc})
	path := "/appointments/" + svc.appt.ID.String() + "/otp"

	rec := do(t, h, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.issue.StaffInitiated)
	assert.NotContains(t, rec.Body.String(), "482913")

	rec = do(t, h, http.MethodPost, path, `{"self_service": true, "resend": true}`, staffIDHeader, "U-FRONTDESK")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U-FRONTDESK", svc.issue.IssuedBy)
	assert.False(t, svc.issue.StaffInitiated)
	assert.True(t, svc.issue.Resend)
	assert.Equal(t, "482913", decodeBody(t, rec)["otp_code"])
}

func TestVerifyOTP(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc})
	path := "/appointments/" + svc.appt.ID.String() + "/otp/verify"

	rec := do(t, h, http.MethodPost, path, `{"otp_code": " 482913 "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "482913", svc.verifyCode)
	assert.Equal(t, []any{}, decodeBody(t, rec)["propagated_to"])

	rec = do(t, h, http.MethodPost, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = appointment.ErrOTPExpired
	rec = do(t, h, http.MethodPost, path, `{"otp_code": "482913"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "otp_expired", decodeBody(t, rec)["error"])
}

func TestRevoke_DefaultsToActingStaff(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc})
	path := "/appointments/" + svc.appt.ID.String() + "/revoke"

	rec := do(t, h, http.MethodPost, path, `{"reason": "owner request"}`, staffIDHeader, "U-ADMIN")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U-ADMIN", svc.revoke.RevokedBy)
	assert.Equal(t, "owner request", svc.revoke.Reason)

	rec = do(t, h, http.MethodPost, path, `{"revoked_by": "U-DOC"}`, staffIDHeader, "U-ADMIN")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U-DOC", svc.revoke.RevokedBy)
}

func signedToken(t *testing.T, secret, sub string, method jwt.SigningMethod) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestStaffAuth_JWT(t *testing.T) {
	svc := &fakeAppointments{appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Appointments: svc, JWTSecret: "s3cret"})
	path := "/appointments/" + svc.appt.ID.String() + "/revoke"

	rec := do(t, h, http.MethodPost, path, `{}`, staffIDHeader, "U-SPOOF")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, path, `{}`, "Authorization", "Bearer "+signedToken(t, "other", "U-9", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, path, `{}`,
		"Authorization", "Bearer "+signedToken(t, "s3cret", "U-9", jwt.SigningMethodHS256),
		staffIDHeader, "U-SPOOF")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "U-9", svc.revoke.RevokedBy)

	token := "Bearer " + signedToken(t, "s3cret", "U-9", jwt.SigningMethodHS256)

	svc.revoke = appointment.RevokeInput{}
	rec = do(t, h, http.MethodPost, path, `{"revoked_by": "U-CHIEF"}`, "Authorization", token)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "forbidden", decodeBody(t, rec)["error"])
	assert.Empty(t, svc.revoke.RevokedBy, "a mismatched revoker never reaches the service")

	rec = do(t, h, http.MethodPost, path, `{"revoked_by": "U-9", "reason": "owner request"}`, "Authorization", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "U-9", svc.revoke.RevokedBy)

	rec = do(t, h, http.MethodPost, "/appointments/"+svc.appt.ID.String()+"/otp", `{"self_service": true}`, "Authorization", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "U-9", svc.issue.IssuedBy)

	rec = do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health checks stay open")
}

func TestListAppointments(t *testing.T) {
	detail := appointment.AppointmentDetail{Appointment: *sampleAppointment(), Pet: &directory.Pet{PlatformID: "P1", Name: "Bruno"}}
	svc := &fakeAppointments{list: []appointment.AppointmentDetail{detail}}
	h := NewRouter(RouterConfig{Appointments: svc})

	rec := do(t, h, http.MethodGet, "/appointments?entity_id=E1&status=scheduled&start_date=2025-10-01&end_date=2025-10-31&q=APT&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "E1", svc.filter.EntityPlatformID)
	assert.Equal(t, appointment.StatusScheduled, svc.filter.Status)
	require.NotNil(t, svc.filter.StartDate)
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), *svc.filter.EndDate)
	assert.Equal(t, 5, svc.filter.Limit)
	assert.Equal(t, 10, svc.filter.Offset)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	item := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "Bruno", item["pet"].(map[string]any)["name"])

	rec = do(t, h, http.MethodGet, "/appointments?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/appointments?start_date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPetEMRAccess(t *testing.T) {
	svc := &fakeAppointments{}
	h := NewRouter(RouterConfig{Appointments: svc})

	rec := do(t, h, http.MethodGet, "/pets/P1/emr-access", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["items"])
	assert.Equal(t, []string{"emr-access:P1"}, svc.calls)
}

func TestDirectoryEndpoints(t *testing.T) {
	dir := &fakeDirectory{
		matches: []directory.PetMatch{{Pet: directory.Pet{PlatformID: "P1", Name: "Bruno"}, Ownerless: true}},
		slots:   []directory.Slot{{Time: "09:00", Available: true}},
	}
	h := NewRouter(RouterConfig{Directory: dir})

	rec := do(t, h, http.MethodGet, "/directory/search?q=bru", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bru", dir.query)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/directory/entities/E1/staff/S1/slots?date=2025-10-20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC), dir.slotDate)

	rec = do(t, h, http.MethodGet, "/directory/entities/E1/staff/S1/slots?date=20-10-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	dir.err = errors.New("call get_available_slots: timeout")
	rec = do(t, h, http.MethodGet, "/directory/entities/E1/staff", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDraftEndpoints(t *testing.T) {
	draft := booking.NewDraft()
	bk := &fakeBooking{draft: draft, appt: sampleAppointment()}
	h := NewRouter(RouterConfig{Booking: bk})

	rec := do(t, h, http.MethodPost, "/drafts", `{"entity_platform_id": "E1", "appointment_type": "dental"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, bk.patch.EntityPlatformID)
	assert.Equal(t, "E1", *bk.patch.EntityPlatformID)
	require.NotNil(t, bk.patch.Type)
	assert.Equal(t, appointment.TypeDental, *bk.patch.Type)
	assert.Nil(t, bk.patch.StaffAssignmentID)
	assert.Equal(t, draft.ID, decodeBody(t, rec)["id"])

	rec = do(t, h, http.MethodPatch, "/drafts/"+draft.ID, `{"appointment_type": "spa"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/drafts/"+draft.ID+"/slots", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/drafts/"+draft.ID+"/submit", "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	bk.err = booking.ErrSlotNotOffered
	rec = do(t, h, http.MethodPatch, "/drafts/"+draft.ID, `{"appointment_time": "11:00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	bk.err = booking.ErrDraftNotFound
	rec = do(t, h, http.MethodGet, "/drafts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayMount(t *testing.T) {
	var gotPath string
	finance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, "ledger")
	}))
	defer finance.Close()

	gw, err := gateway.New(gateway.WithOrigins(gateway.DefaultRoutes(), map[string]string{"finance": finance.URL}), nil)
	require.NoError(t, err)
	h := NewRouter(RouterConfig{Gateway: gw})

	rec := do(t, h, http.MethodGet, "/gateway/finance/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ledger", rec.Body.String())
	assert.Equal(t, "/invoices", gotPath)

	rec = do(t, h, http.MethodGet, "/gateway/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, len(gateway.DefaultRoutes()), decodeBody(t, rec)["count"])
}

func TestRecoverMiddleware(t *testing.T) {
	h := NewRouter(RouterConfig{Gateway: panicGateway{}})

	rec := do(t, h, http.MethodGet, "/gateway/anything", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeBody(t, rec)["error"])
}
