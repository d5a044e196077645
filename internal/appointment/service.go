package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/config"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/notify"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventOTPIssued            = "EMR_OTP_ISSUED"
	EventOTPVerified          = "EMR_OTP_VERIFIED"
	EventConsultationStarted  = "CONSULTATION_STARTED"
	EventConsultationEnded    = "CONSULTATION_ENDED"
	EventAccessRevoked        = "EMR_ACCESS_REVOKED"
)

const (
	defaultDurationMinutes = 30
	defaultListLimit       = 20
	maxListLimit           = 100
	notifyTimeout          = 10 * time.Second
)

// ErrValidation wraps every input error that is detected before any lookup.
var ErrValidation = errors.New("validation failed")

var (
	ErrPetRequired     = fmt.Errorf("%w: pet is required", ErrValidation)
	ErrOwnerRequired   = fmt.Errorf("%w: owner is required", ErrValidation)
	ErrEntityRequired  = fmt.Errorf("%w: hospital is required", ErrValidation)
	ErrStaffRequired   = fmt.Errorf("%w: staff member is required", ErrValidation)
	ErrDateRequired    = fmt.Errorf("%w: appointment date is required", ErrValidation)
	ErrTimeRequired    = fmt.Errorf("%w: appointment time is required", ErrValidation)
	ErrInvalidTime     = fmt.Errorf("%w: appointment time must be HH:MM", ErrValidation)
	ErrInvalidType     = fmt.Errorf("%w: unknown appointment type", ErrValidation)
	ErrInvalidStatus   = fmt.Errorf("%w: unknown appointment status", ErrValidation)
	ErrRevokerRequired = fmt.Errorf("%w: revoked_by is required", ErrValidation)
	ErrPastDate        = fmt.Errorf("%w: appointment date is in the past", ErrValidation)
)

var (
	ErrPetOwnerMismatch        = errors.New("pet does not belong to owner")
	ErrSlotUnavailable         = errors.New("slot is not available")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrConcurrentUpdate        = errors.New("appointment changed concurrently, please retry")

	ErrOTPNotIssued        = errors.New("no EMR access code has been issued")
	ErrInvalidOTP          = errors.New("invalid EMR access code")
	ErrOTPExpired          = errors.New("EMR access code has expired")
	ErrOTPOutstanding      = errors.New("an EMR access code is already outstanding")
	ErrOTPAlreadyVerified  = errors.New("EMR access is already verified")
	ErrOTPNotVerified      = errors.New("EMR access has not been verified")
	ErrEMRAccessRevoked    = errors.New("EMR access has been revoked")
	ErrFutureConsultation  = errors.New("consultation cannot start before the appointment date")
	ErrWriteAccessActive   = errors.New("consultation is already in progress")
	ErrWriteAccessInactive = errors.New("no consultation is in progress")
	ErrVerificationBusy    = errors.New("another verification for this pet is in progress, please retry")
)

// Directory is the lookup surface the service needs from the directory package.
type Directory interface {
	GetPet(ctx context.Context, petID string) (*directory.Pet, error)
	GetOwner(ctx context.Context, ownerID string) (*directory.Owner, error)
	GetEntity(ctx context.Context, entityID string) (*directory.Entity, error)
	StaffMember(ctx context.Context, entityID, assignmentID string) (*directory.StaffAssignment, error)
	Slots(ctx context.Context, entityID, assignmentID string, date time.Time) ([]directory.Slot, error)
	PetsByIDs(ctx context.Context, petIDs []string) ([]directory.Pet, error)
	OwnersByIDs(ctx context.Context, ownerIDs []string) ([]directory.Owner, error)
}

type Service struct {
	repo     Repository
	dir      Directory
	locker   redisclient.Locker
	notifier notify.Notifier
	cfg      config.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, dir Directory, locker redisclient.Locker, notifier notify.Notifier, cfg config.Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) today() time.Time {
	return DateOnly(s.now(), s.cfg.Location)
}

type CreateInput struct {
	PetPlatformID     string
	OwnerPlatformID   string
	EntityPlatformID  string
	StaffAssignmentID string
	Date              time.Time
	Time              string
	Type              AppointmentType
	Reason            string
	Notes             string
	BookingSource     string
}

func (in *CreateInput) normalize() error {
	in.PetPlatformID = strings.TrimSpace(in.PetPlatformID)
	in.OwnerPlatformID = strings.TrimSpace(in.OwnerPlatformID)
	in.EntityPlatformID = strings.TrimSpace(in.EntityPlatformID)
	in.StaffAssignmentID = strings.TrimSpace(in.StaffAssignmentID)
	in.Time = strings.TrimSpace(in.Time)

	switch {
	case in.PetPlatformID == "":
		return ErrPetRequired
	case in.OwnerPlatformID == "":
		return ErrOwnerRequired
	case in.EntityPlatformID == "":
		return ErrEntityRequired
	case in.StaffAssignmentID == "":
		return ErrStaffRequired
	case in.Date.IsZero():
		return ErrDateRequired
	case in.Time == "":
		return ErrTimeRequired
	}

	if _, err := time.Parse("15:04", in.Time); err != nil || len(in.Time) != 5 {
		return ErrInvalidTime
	}
	if in.Type == "" {
		in.Type = TypeRoutine
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if in.BookingSource == "" {
		in.BookingSource = SourceHospitalOnline
	}
	in.Date = DateOnly(in.Date, nil)
	return nil
}

// Create books a slot for a pet. The chosen time must be offered as available
// by the slot source, and the insert runs under a per-slot lock so that
// concurrent requests for the same staff member and time cannot both succeed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.Date.Before(s.today()) {
		return nil, ErrPastDate
	}

	pet, err := s.dir.GetPet(ctx, in.PetPlatformID)
	if err != nil {
		return nil, fmt.Errorf("load pet: %w", err)
	}
	if pet.OwnerPlatformID != in.OwnerPlatformID {
		return nil, ErrPetOwnerMismatch
	}
	if _, err := s.dir.GetOwner(ctx, in.OwnerPlatformID); err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if _, err := s.dir.GetEntity(ctx, in.EntityPlatformID); err != nil {
		return nil, fmt.Errorf("load hospital: %w", err)
	}
	staff, err := s.dir.StaffMember(ctx, in.EntityPlatformID, in.StaffAssignmentID)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}

	duration := staff.SlotDurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	dateKey := in.Date.Format(time.DateOnly)
	var created *Appointment

	err = s.locker.WithLock(ctx, redisclient.SlotLockKey(in.StaffAssignmentID, dateKey, in.Time), func(lockCtx context.Context) error {
		slots, err := s.dir.Slots(lockCtx, in.EntityPlatformID, in.StaffAssignmentID, in.Date)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}
		if !slotAvailable(slots, in.Time) {
			return ErrSlotUnavailable
		}

		number, err := GenerateNumber(in.Date)
		if err != nil {
			return err
		}

		appt, err := s.repo.Insert(lockCtx, &Appointment{
			ID:                uuid.New(),
			Number:            number,
			PetPlatformID:     in.PetPlatformID,
			OwnerPlatformID:   in.OwnerPlatformID,
			EntityPlatformID:  in.EntityPlatformID,
			DoctorPlatformID:  staff.PlatformID,
			StaffAssignmentID: in.StaffAssignmentID,
			Date:              in.Date,
			Time:              in.Time,
			DurationMinutes:   duration,
			Type:              in.Type,
			Reason:            strings.TrimSpace(in.Reason),
			Notes:             strings.TrimSpace(in.Notes),
			Status:            StatusScheduled,
			BookingSource:     in.BookingSource,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"appointment_number": appt.Number,
			"pet_platform_id":    appt.PetPlatformID,
			"entity_platform_id": appt.EntityPlatformID,
			"assignment_id":      appt.StaffAssignmentID,
			"date":               dateKey,
			"time":               appt.Time,
			"booking_source":     appt.BookingSource,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

func slotAvailable(slots []directory.Slot, at string) bool {
	for _, sl := range slots {
		if sl.Time == at {
			return sl.Available
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, (*Appointment).canConfirm,
		[]AppointmentStatus{StatusScheduled}, StatusConfirmed, EventAppointmentConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, (*Appointment).canCancel,
		[]AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusCancelled, EventAppointmentCancelled)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, (*Appointment).canMarkNoShow,
		[]AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusNoShow, EventAppointmentNoShow)
}

// transition runs a plain status change that touches no EMR fields.
func (s *Service) transition(ctx context.Context, id uuid.UUID, guard func(*Appointment) error, from []AppointmentStatus, to AppointmentStatus, event string) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(appt); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.explainMiss(ctx, id, guard)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, event, map[string]any{"from": appt.Status, "to": to})
	return updated, nil
}

// MarkNoShows moves every scheduled or confirmed appointment dated before
// today to no-show. It is called periodically by the worker.
// MarkNoShows moves past-dated scheduled and confirmed appointments to
// no-show. Rows whose OTP was verified are skipped: the owner was present and
// the consultation may still be started late.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindPastOpen(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("find past open appointments: %w", err)
	}

	marked := 0
	open := []AppointmentStatus{StatusScheduled, StatusConfirmed}
	for _, appt := range candidates {
		_, err := s.repo.UpdateStatus(ctx, appt.ID, open, StatusNoShow)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Warn("failed to mark no-show", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			}
			continue
		}
		marked++
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"from":   appt.Status,
			"reason": "worker",
		})
	}

	return marked, nil
}

type IssueOTPInput struct {
	// StaffInitiated codes are sent to the owner by the notifier; otherwise
	// the code is handed back to the caller.
	StaffInitiated bool
	Resend         bool
	// IssuedBy is the acting staff member, recorded on the audit event.
	IssuedBy string
}

type IssuedOTP struct {
	Appointment *Appointment
	// Code is only set for self-service issuance.
	Code string
}

func (s *Service) IssueOTP(ctx context.Context, id uuid.UUID, in IssueOTPInput) (*IssuedOTP, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := appt.canIssueOTP(now, in.Resend); err != nil {
		return nil, err
	}

	code, err := GenerateOTP(OTPLength)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.IssueOTP(ctx, id, OTPIssue{
		Code:        code,
		ExpiresAt:   now.Add(s.cfg.OTPTTL),
		SentToOwner: in.StaffInitiated,
		IssuedAt:    now,
		Resend:      in.Resend,
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.explainMiss(ctx, id, func(a *Appointment) error { return a.canIssueOTP(now, in.Resend) })
		}
		return nil, fmt.Errorf("issue otp: %w", err)
	}

	s.logEvent(ctx, id, EventOTPIssued, map[string]any{
		"staff_initiated": in.StaffInitiated,
		"resend":          in.Resend,
		"issued_by":       in.IssuedBy,
		"expires_at":      updated.EMR.OTPExpiresAt,
	})

	if in.StaffInitiated {
		s.dispatchOTP(ctx, updated, code)
		return &IssuedOTP{Appointment: updated}, nil
	}
	return &IssuedOTP{Appointment: updated, Code: code}, nil
}

// dispatchOTP sends the code to the owner. Failures are logged and never
// surface to the caller: the code is already stored and can be resent.
func (s *Service) dispatchOTP(ctx context.Context, appt *Appointment, code string) {
	if s.notifier == nil {
		return
	}
	log := s.log.With(zap.String("appointment_id", appt.ID.String()))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	msg := notify.OTPMessage{
		AppointmentID:     appt.ID.String(),
		AppointmentNumber: appt.Number,
		Date:              appt.Date.Format(time.DateOnly),
		Time:              appt.Time,
		Code:              code,
	}
	if appt.EMR.OTPExpiresAt != nil {
		msg.ExpiresAt = *appt.EMR.OTPExpiresAt
	}

	if pet, err := s.dir.GetPet(ctx, appt.PetPlatformID); err == nil {
		msg.PetName = pet.Name
	}
	if entity, err := s.dir.GetEntity(ctx, appt.EntityPlatformID); err == nil {
		msg.EntityName = entity.Name
	}
	owner, err := s.dir.GetOwner(ctx, appt.OwnerPlatformID)
	if err != nil {
		log.Warn("otp not dispatched: owner lookup failed", zap.Error(err))
		return
	}
	msg.OwnerName = owner.FullName()
	if owner.Email != nil {
		msg.Email = *owner.Email
	}
	if owner.Phone != nil {
		msg.Phone = *owner.Phone
	}

	if err := s.notifier.SendOTP(ctx, msg); err != nil {
		log.Warn("otp dispatch failed", zap.Error(err))
	}
}

type VerifyResult struct {
	Appointment *Appointment
	// Propagated lists the pet's same-day appointments that were verified
	// alongside this one.
	Propagated []uuid.UUID
}

// VerifyOTP checks the submitted code and grants EMR read access. The
// verification is extended to every other open appointment of the same pet
// on the same date, atomically, under a pet/day lock.
func (s *Service) VerifyOTP(ctx context.Context, id uuid.UUID, code string) (*VerifyResult, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := appt.checkOTP(code, now); err != nil {
		return nil, err
	}
	if appt.EMR.OTPVerified {
		return &VerifyResult{Appointment: appt}, nil
	}

	var result *VerifyResult
	lockKey := redisclient.PetDayLockKey(appt.PetPlatformID, appt.Date.Format(time.DateOnly))

	err = s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		updated, siblings, err := s.repo.VerifyOTP(lockCtx, id, strings.TrimSpace(code), now)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("verify otp: %w", err)
			}
			current, getErr := s.repo.GetByID(lockCtx, id)
			if getErr != nil {
				return getErr
			}
			if err := current.checkOTP(code, now); err != nil {
				return err
			}
			if current.EMR.OTPVerified {
				result = &VerifyResult{Appointment: current}
				return nil
			}
			return ErrConcurrentUpdate
		}

		result = &VerifyResult{Appointment: updated, Propagated: siblings}

		propagated := make([]string, 0, len(siblings))
		for _, sib := range siblings {
			propagated = append(propagated, sib.String())
		}
		s.logEvent(lockCtx, id, EventOTPVerified, map[string]any{
			"pet_platform_id": updated.PetPlatformID,
			"date":            updated.Date.Format(time.DateOnly),
			"propagated_to":   propagated,
		})
		for _, sib := range siblings {
			s.logEvent(lockCtx, sib, EventOTPVerified, map[string]any{
				"propagated_from": id.String(),
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrVerificationBusy
		}
		return nil, err
	}

	return result, nil
}

func (s *Service) StartConsultation(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	today := s.today()
	if err := appt.canStartConsultation(today); err != nil {
		return nil, err
	}

	updated, err := s.repo.StartConsultation(ctx, id, today, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.explainMiss(ctx, id, func(a *Appointment) error { return a.canStartConsultation(today) })
		}
		return nil, fmt.Errorf("start consultation: %w", err)
	}

	s.logEvent(ctx, id, EventConsultationStarted, map[string]any{"from": appt.Status})
	return updated, nil
}

func (s *Service) EndConsultation(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := appt.canEndConsultation(); err != nil {
		return nil, err
	}

	updated, err := s.repo.EndConsultation(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.explainMiss(ctx, id, (*Appointment).canEndConsultation)
		}
		return nil, fmt.Errorf("end consultation: %w", err)
	}

	s.logEvent(ctx, id, EventConsultationEnded, map[string]any{})
	return updated, nil
}

type RevokeInput struct {
	RevokedBy string
	Reason    string
}

// RevokeAccess withdraws EMR access. Write access is forced off; the status
// is left as is. A revoked appointment cannot re-enter the OTP cycle.
func (s *Service) RevokeAccess(ctx context.Context, id uuid.UUID, in RevokeInput) (*Appointment, error) {
	by := strings.TrimSpace(in.RevokedBy)
	if by == "" {
		return nil, ErrRevokerRequired
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := appt.canRevoke(); err != nil {
		return nil, err
	}

	updated, err := s.repo.Revoke(ctx, id, Revocation{
		By:     by,
		Reason: strings.TrimSpace(in.Reason),
		At:     s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.explainMiss(ctx, id, (*Appointment).canRevoke)
		}
		return nil, fmt.Errorf("revoke access: %w", err)
	}

	s.logEvent(ctx, id, EventAccessRevoked, map[string]any{
		"revoked_by":           by,
		"reason":               in.Reason,
		"write_access_dropped": appt.EMR.WriteAccessActive,
	})
	return updated, nil
}

// explainMiss re-reads an appointment whose conditional update matched no row
// and reports why the guard failed.
func (s *Service) explainMiss(ctx context.Context, id uuid.UUID, guard func(*Appointment) error) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guard(current); err != nil {
		return err
	}
	return ErrConcurrentUpdate
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
