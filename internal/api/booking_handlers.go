package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/directory"
)

type DirectoryService interface {
	Search(ctx context.Context, query string) ([]directory.PetMatch, error)
	SearchEntities(ctx context.Context, query string) ([]directory.Entity, error)
	Staff(ctx context.Context, entityID string) ([]directory.StaffAssignment, error)
	Slots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]directory.Slot, error)
}

type BookingService interface {
	Start(ctx context.Context, p booking.Patch) (*booking.Draft, error)
	Get(ctx context.Context, id string) (*booking.Draft, error)
	Update(ctx context.Context, id string, p booking.Patch) (*booking.Draft, error)
	RefreshSlots(ctx context.Context, id string) (*booking.Draft, error)
	Submit(ctx context.Context, id string) (*appointment.Appointment, error)
}

func searchDirectoryHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := svc.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[directory.PetMatch]{Items: matches, Count: len(matches)})
	}
}

func searchEntitiesHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := svc.SearchEntities(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[directory.Entity]{Items: entities, Count: len(entities)})
	}
}

func listStaffHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staff, err := svc.Staff(r.Context(), chi.URLParam(r, "entityID"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[directory.StaffAssignment]{Items: staff, Count: len(staff)})
	}
}

func listSlotsHandler(svc DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Slots(r.Context(), chi.URLParam(r, "entityID"), chi.URLParam(r, "assignmentID"), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[directory.Slot]{Items: slots, Count: len(slots)})
	}
}

func startDraftHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DraftRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.Start(r.Context(), req.patch())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func getDraftHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func updateDraftHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DraftRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		d, err := svc.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func refreshDraftSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.RefreshSlots(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func submitDraftHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.Submit(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}
