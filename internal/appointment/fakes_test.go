package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/notify"
	redisclient "github.com/hackgods/hms-appointments/internal/redis"
)

// -- In-memory repository --

type memRepo struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*Appointment
	events []EventLog

	// beforeUpdate runs against the stored row before a conditional update
	// evaluates its guard, to simulate a concurrent writer.
	beforeUpdate func(a *Appointment)
	failEvents   bool
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*Appointment)}
}

func clone(a *Appointment) *Appointment {
	c := *a
	return &c
}

func (r *memRepo) put(a *Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[a.ID] = clone(a)
}

func (r *memRepo) row(id uuid.UUID) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok {
		return clone(a)
	}
	return nil
}

func (r *memRepo) eventTypes(id uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.AppointmentID != nil && *ev.AppointmentID == id {
			out = append(out, ev.EventType)
		}
	}
	return out
}

func (r *memRepo) lastEvent(id uuid.UUID, eventType string) *EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if ev.EventType == eventType && ev.AppointmentID != nil && *ev.AppointmentID == id {
			return &ev
		}
	}
	return nil
}

// conditional applies mutate when guard holds, mirroring UPDATE ... WHERE.
func (r *memRepo) conditional(id uuid.UUID, guard func(*Appointment) bool, mutate func(*Appointment)) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if r.beforeUpdate != nil {
		r.beforeUpdate(a)
		r.beforeUpdate = nil
	}
	if !guard(a) {
		return nil, ErrAppointmentNotFound
	}
	mutate(a)
	a.UpdatedAt = time.Now()
	return clone(a), nil
}

func (r *memRepo) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.StaffAssignmentID == a.StaffAssignmentID && existing.Date.Equal(a.Date) &&
			existing.Time == a.Time && existing.Status != StatusCancelled && existing.Status != StatusNoShow {
			return nil, ErrSlotTaken
		}
	}
	c := clone(a)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.rows[c.ID] = c
	return clone(c), nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a := r.row(id); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) sorted(keep func(*Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.rows {
		if keep(a) {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (r *memRepo) List(_ context.Context, f Filter) ([]Appointment, error) {
	all := r.sorted(func(a *Appointment) bool {
		switch {
		case f.EntityPlatformID != "" && a.EntityPlatformID != f.EntityPlatformID:
			return false
		case f.OwnerPlatformID != "" && a.OwnerPlatformID != f.OwnerPlatformID:
			return false
		case f.PetPlatformID != "" && a.PetPlatformID != f.PetPlatformID:
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case f.StartDate != nil && a.Date.Before(*f.StartDate):
			return false
		case f.EndDate != nil && a.Date.After(*f.EndDate):
			return false
		case f.Term != "" && !strings.Contains(strings.ToLower(a.Number+" "+a.Reason), strings.ToLower(f.Term)):
			return false
		}
		return true
	})
	if f.Offset >= len(all) {
		return nil, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *memRepo) ListAccessGrantedByPet(_ context.Context, petID string) ([]Appointment, error) {
	return r.sorted(func(a *Appointment) bool {
		return a.PetPlatformID == petID && a.EMR.AccessGranted && !a.EMR.Revoked
	}), nil
}

func (r *memRepo) FindPastOpen(_ context.Context, before time.Time) ([]Appointment, error) {
	return r.sorted(func(a *Appointment) bool {
		return a.Status.open() && a.Date.Before(before) && !a.EMR.OTPVerified
	}), nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	return r.conditional(id, func(a *Appointment) bool {
		for _, st := range from {
			if a.Status == st {
				return true
			}
		}
		return false
	}, func(a *Appointment) {
		a.Status = to
	})
}

func (r *memRepo) IssueOTP(_ context.Context, id uuid.UUID, in OTPIssue) (*Appointment, error) {
	return r.conditional(id, func(a *Appointment) bool {
		if a.Status != StatusScheduled || a.EMR.Revoked || a.EMR.OTPVerified {
			return false
		}
		return in.Resend || a.EMR.OTPCode == nil || a.EMR.OTPExpiresAt.Before(in.IssuedAt)
	}, func(a *Appointment) {
		code, exp := in.Code, in.ExpiresAt
		a.EMR.OTPCode = &code
		a.EMR.OTPExpiresAt = &exp
		a.EMR.AccessGranted = true
		a.EMR.OTPSentToOwner = in.SentToOwner
		a.EMR.OTPSentAt = nil
		if in.SentToOwner {
			at := in.IssuedAt
			a.EMR.OTPSentAt = &at
		}
	})
}

func (r *memRepo) VerifyOTP(_ context.Context, id uuid.UUID, code string, at time.Time) (*Appointment, []uuid.UUID, error) {
	updated, err := r.conditional(id, func(a *Appointment) bool {
		return a.EMR.OTPCode != nil && *a.EMR.OTPCode == code &&
			!a.EMR.OTPExpiresAt.Before(at) && !a.EMR.OTPVerified && !a.EMR.Revoked && !a.Status.Terminal()
	}, func(a *Appointment) {
		markVerified(a, at)
	})
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var siblings []uuid.UUID
	for _, a := range r.rows {
		if a.ID == id || a.PetPlatformID != updated.PetPlatformID || !a.Date.Equal(updated.Date) {
			continue
		}
		if !a.Status.open() || a.EMR.Revoked || a.EMR.OTPVerified {
			continue
		}
		c, exp := code, *updated.EMR.OTPExpiresAt
		a.EMR.OTPCode = &c
		a.EMR.OTPExpiresAt = &exp
		markVerified(a, at)
		siblings = append(siblings, a.ID)
	}
	return updated, siblings, nil
}

func markVerified(a *Appointment, at time.Time) {
	a.EMR.OTPVerified = true
	a.EMR.OTPVerifiedAt = &at
	a.EMR.AccessGranted = true
	if a.EMR.ReadAccessGrantedAt == nil {
		a.EMR.ReadAccessGrantedAt = &at
	}
}

func (r *memRepo) StartConsultation(_ context.Context, id uuid.UUID, today, at time.Time) (*Appointment, error) {
	return r.conditional(id, func(a *Appointment) bool {
		return !a.Date.After(today) && a.Status.open() && a.EMR.OTPVerified &&
			!a.EMR.Revoked && !a.EMR.WriteAccessActive
	}, func(a *Appointment) {
		a.Status = StatusInProgress
		a.EMR.WriteAccessActive = true
		a.EMR.WriteAccessStartedAt = &at
	})
}

func (r *memRepo) EndConsultation(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	return r.conditional(id, func(a *Appointment) bool {
		return a.Status == StatusInProgress && (a.EMR.WriteAccessActive || a.EMR.Revoked)
	}, func(a *Appointment) {
		a.Status = StatusCompleted
		if a.EMR.WriteAccessActive {
			a.EMR.WriteAccessEndedAt = &at
		}
		a.EMR.WriteAccessActive = false
	})
}

func (r *memRepo) Revoke(_ context.Context, id uuid.UUID, rv Revocation) (*Appointment, error) {
	return r.conditional(id, func(a *Appointment) bool {
		return !a.EMR.Revoked && !a.Status.Terminal()
	}, func(a *Appointment) {
		at, by, reason := rv.At, rv.By, rv.Reason
		a.EMR.Revoked = true
		a.EMR.RevokedAt = &at
		a.EMR.RevokedBy = &by
		if reason != "" {
			a.EMR.RevocationReason = &reason
		}
		if a.EMR.WriteAccessActive {
			a.EMR.WriteAccessEndedAt = &at
		}
		a.EMR.WriteAccessActive = false
	})
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	if r.failEvents {
		return errors.New("event_logs is read-only")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// -- Locker --

type fakeLocker struct {
	mu   sync.Mutex
	keys []string
	busy map[string]bool
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	busy := l.busy[key]
	l.mu.Unlock()

	if busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// -- Directory --

type fakeDirectory struct {
	calls    int
	pets     map[string]directory.Pet
	owners   map[string]directory.Owner
	entities map[string]directory.Entity
	staff    map[string][]directory.StaffAssignment
	slots    []directory.Slot
	slotErr  error
}

func (d *fakeDirectory) GetPet(_ context.Context, petID string) (*directory.Pet, error) {
	d.calls++
	if p, ok := d.pets[petID]; ok {
		return &p, nil
	}
	return nil, directory.ErrPetNotFound
}

func (d *fakeDirectory) GetOwner(_ context.Context, ownerID string) (*directory.Owner, error) {
	d.calls++
	if o, ok := d.owners[ownerID]; ok {
		return &o, nil
	}
	return nil, directory.ErrOwnerNotFound
}

func (d *fakeDirectory) GetEntity(_ context.Context, entityID string) (*directory.Entity, error) {
	d.calls++
	if e, ok := d.entities[entityID]; ok {
		return &e, nil
	}
	return nil, directory.ErrEntityNotFound
}

func (d *fakeDirectory) StaffMember(_ context.Context, entityID, assignmentID string) (*directory.StaffAssignment, error) {
	d.calls++
	for _, sa := range d.staff[entityID] {
		if sa.AssignmentID == assignmentID {
			return &sa, nil
		}
	}
	return nil, directory.ErrStaffNotFound
}

func (d *fakeDirectory) Slots(_ context.Context, _, _ string, _ time.Time) ([]directory.Slot, error) {
	d.calls++
	return d.slots, d.slotErr
}

func (d *fakeDirectory) PetsByIDs(_ context.Context, petIDs []string) ([]directory.Pet, error) {
	var out []directory.Pet
	for _, id := range petIDs {
		if p, ok := d.pets[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) OwnersByIDs(_ context.Context, ownerIDs []string) ([]directory.Owner, error) {
	var out []directory.Owner
	for _, id := range ownerIDs {
		if o, ok := d.owners[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// -- Notifier --

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.OTPMessage
	fail error
}

func (n *fakeNotifier) SendOTP(_ context.Context, msg notify.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.fail
}
