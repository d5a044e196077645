package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/appointment"
)

type AppointmentService interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	List(ctx context.Context, f appointment.Filter) ([]appointment.AppointmentDetail, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	IssueOTP(ctx context.Context, id uuid.UUID, in appointment.IssueOTPInput) (*appointment.IssuedOTP, error)
	VerifyOTP(ctx context.Context, id uuid.UUID, code string) (*appointment.VerifyResult, error)
	StartConsultation(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	EndConsultation(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	RevokeAccess(ctx context.Context, id uuid.UUID, in appointment.RevokeInput) (*appointment.Appointment, error)
	PetEMRAccess(ctx context.Context, petID string) ([]appointment.Appointment, error)
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateInput{
			PetPlatformID:     req.PetPlatformID,
			OwnerPlatformID:   req.OwnerPlatformID,
			EntityPlatformID:  req.EntityPlatformID,
			StaffAssignmentID: req.StaffAssignmentID,
			Date:              date,
			Time:              req.Time,
			Type:              appointment.AppointmentType(req.Type),
			Reason:            req.Reason,
			Notes:             req.Notes,
			BookingSource:     req.BookingSource,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetDetail(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		details, err := svc.List(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(details))
		for i := range details {
			items = append(items, toDetailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: items, Count: len(items)})
	}
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parseFilter(r *http.Request) (appointment.Filter, error) {
	q := r.URL.Query()
	f := appointment.Filter{
		EntityPlatformID: strings.TrimSpace(q.Get("entity_id")),
		OwnerPlatformID:  strings.TrimSpace(q.Get("owner_id")),
		PetPlatformID:    strings.TrimSpace(q.Get("pet_id")),
		Status:           appointment.AppointmentStatus(strings.TrimSpace(q.Get("status"))),
		Term:             q.Get("q"),
	}

	for name, dst := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return f, queryError(name + " must be YYYY-MM-DD")
		}
		*dst = &d
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, queryError(name + " must be a non-negative integer")
		}
		*dst = n
	}
	return f, nil
}

// transitionHandler serves the action endpoints that take no body.
func transitionHandler(action func(context.Context, uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := action(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func issueOTPHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req IssueOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		issued, err := svc.IssueOTP(r.Context(), id, appointment.IssueOTPInput{
			StaffInitiated: !req.SelfService,
			Resend:         req.Resend,
			IssuedBy:       GetStaffID(r.Context()),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, IssueOTPResponse{
			Appointment: toAppointmentResponse(issued.Appointment),
			Code:        issued.Code,
		})
	}
}

func verifyOTPHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req VerifyOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.VerifyOTP(r.Context(), id, strings.TrimSpace(req.Code))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		propagated := res.Propagated
		if propagated == nil {
			propagated = []uuid.UUID{}
		}
		writeJSON(w, http.StatusOK, VerifyOTPResponse{
			Appointment: toAppointmentResponse(res.Appointment),
			Propagated:  propagated,
		})
	}
}

func revokeAccessHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req RevokeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		revokedBy := strings.TrimSpace(req.RevokedBy)
		if StaffVerified(r.Context()) {
			// The token subject is the audit identity.
			staffID := GetStaffID(r.Context())
			if revokedBy != "" && revokedBy != staffID {
				writeError(w, http.StatusForbidden, "forbidden", "revoked_by must match the authenticated staff member")
				return
			}
			revokedBy = staffID
		} else if revokedBy == "" {
			revokedBy = GetStaffID(r.Context())
		}

		appt, err := svc.RevokeAccess(r.Context(), id, appointment.RevokeInput{
			RevokedBy: revokedBy,
			Reason:    req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func petEMRAccessHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.PetEMRAccess(r.Context(), chi.URLParam(r, "petID"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			items = append(items, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: items, Count: len(items)})
	}
}
