package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/directory"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeJSON reads and validates a request body. An empty body decodes to
// the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", formatValidation(err))
		return false
	}
	return true
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", field, strings.Join(strings.Fields(fe.Param()), ", ")))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must match %s", field, fe.Param()))
		case "max", "min":
			msgs = append(msgs, fmt.Sprintf("%s length must be %s %s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, ", ")
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps domain errors onto HTTP status codes. Anything
// unrecognised is a store failure and is reported verbatim.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, directory.ErrPetNotFound):
		writeError(w, http.StatusNotFound, "pet_not_found", err.Error())
	case errors.Is(err, directory.ErrOwnerNotFound):
		writeError(w, http.StatusNotFound, "owner_not_found", err.Error())
	case errors.Is(err, directory.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, "entity_not_found", err.Error())
	case errors.Is(err, directory.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, booking.ErrDraftNotFound):
		writeError(w, http.StatusNotFound, "draft_not_found", err.Error())

	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", appointment.ErrSlotBeingBooked.Error())
	case errors.Is(err, appointment.ErrVerificationBusy):
		writeError(w, http.StatusConflict, "verification_busy", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update", err.Error())
	case errors.Is(err, booking.ErrDraftConflict):
		writeError(w, http.StatusConflict, "draft_conflict", err.Error())

	case errors.Is(err, appointment.ErrPetOwnerMismatch):
		writeError(w, http.StatusUnprocessableEntity, "pet_owner_mismatch", err.Error())
	case errors.Is(err, appointment.ErrOTPNotIssued):
		writeError(w, http.StatusUnprocessableEntity, "otp_not_issued", err.Error())
	case errors.Is(err, appointment.ErrInvalidOTP):
		writeError(w, http.StatusUnprocessableEntity, "invalid_otp", err.Error())
	case errors.Is(err, appointment.ErrOTPExpired):
		writeError(w, http.StatusUnprocessableEntity, "otp_expired", err.Error())
	case errors.Is(err, appointment.ErrOTPOutstanding):
		writeError(w, http.StatusUnprocessableEntity, "otp_outstanding", err.Error())
	case errors.Is(err, appointment.ErrOTPAlreadyVerified):
		writeError(w, http.StatusUnprocessableEntity, "otp_already_verified", err.Error())
	case errors.Is(err, appointment.ErrOTPNotVerified):
		writeError(w, http.StatusUnprocessableEntity, "otp_not_verified", err.Error())
	case errors.Is(err, appointment.ErrEMRAccessRevoked):
		writeError(w, http.StatusUnprocessableEntity, "emr_access_revoked", err.Error())
	case errors.Is(err, appointment.ErrFutureConsultation):
		writeError(w, http.StatusUnprocessableEntity, "future_consultation", err.Error())
	case errors.Is(err, appointment.ErrWriteAccessActive):
		writeError(w, http.StatusUnprocessableEntity, "write_access_active", err.Error())
	case errors.Is(err, appointment.ErrWriteAccessInactive):
		writeError(w, http.StatusUnprocessableEntity, "write_access_inactive", err.Error())
	case errors.Is(err, booking.ErrSlotsNotLoaded):
		writeError(w, http.StatusUnprocessableEntity, "slots_not_loaded", err.Error())
	case errors.Is(err, booking.ErrSlotNotOffered):
		writeError(w, http.StatusUnprocessableEntity, "slot_not_offered", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
