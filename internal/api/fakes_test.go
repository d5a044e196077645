package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hms-appointments/internal/appointment"
	"github.com/hackgods/hms-appointments/internal/booking"
	"github.com/hackgods/hms-appointments/internal/directory"
	"github.com/hackgods/hms-appointments/internal/gateway"
)

type fakeAppointments struct {
	appt   *appointment.Appointment
	detail *appointment.AppointmentDetail
	list   []appointment.AppointmentDetail
	code   string
	err    error

	created    appointment.CreateInput
	filter     appointment.Filter
	issue      appointment.IssueOTPInput
	verifyCode string
	revoke     appointment.RevokeInput
	calls      []string
}

func (f *fakeAppointments) record(name string) (*appointment.Appointment, error) {
	f.calls = append(f.calls, name)
	return f.appt, f.err
}

func (f *fakeAppointments) Create(_ context.Context, in appointment.CreateInput) (*appointment.Appointment, error) {
	f.created = in
	return f.record("create")
}

func (f *fakeAppointments) GetDetail(_ context.Context, _ uuid.UUID) (*appointment.AppointmentDetail, error) {
	f.calls = append(f.calls, "get")
	return f.detail, f.err
}

func (f *fakeAppointments) List(_ context.Context, filter appointment.Filter) ([]appointment.AppointmentDetail, error) {
	f.filter = filter
	f.calls = append(f.calls, "list")
	return f.list, f.err
}

func (f *fakeAppointments) Confirm(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.record("confirm")
}

func (f *fakeAppointments) Cancel(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.record("cancel")
}

func (f *fakeAppointments) MarkNoShow(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.record("no-show")
}

func (f *fakeAppointments) IssueOTP(_ context.Context, _ uuid.UUID, in appointment.IssueOTPInput) (*appointment.IssuedOTP, error) {
	f.issue = in
	appt, err := f.record("issue")
	if err != nil {
		return nil, err
	}
	out := &appointment.IssuedOTP{Appointment: appt}
	if !in.StaffInitiated {
		out.Code = f.code
	}
	return out, nil
}

func (f *fakeAppointments) VerifyOTP(_ context.Context, _ uuid.UUID, code string) (*appointment.VerifyResult, error) {
	f.verifyCode = code
	appt, err := f.record("verify")
	if err != nil {
		return nil, err
	}
	return &appointment.VerifyResult{Appointment: appt}, nil
}

func (f *fakeAppointments) StartConsultation(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.record("start")
}

func (f *fakeAppointments) EndConsultation(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return f.record("end")
}

func (f *fakeAppointments) RevokeAccess(_ context.Context, _ uuid.UUID, in appointment.RevokeInput) (*appointment.Appointment, error) {
	f.revoke = in
	return f.record("revoke")
}

func (f *fakeAppointments) PetEMRAccess(_ context.Context, petID string) ([]appointment.Appointment, error) {
	f.calls = append(f.calls, "emr-access:"+petID)
	if f.err != nil {
		return nil, f.err
	}
	if f.appt == nil {
		return []appointment.Appointment{}, nil
	}
	return []appointment.Appointment{*f.appt}, nil
}

type fakeDirectory struct {
	matches  []directory.PetMatch
	entities []directory.Entity
	staff    []directory.StaffAssignment
	slots    []directory.Slot
	err      error

	query    string
	slotDate time.Time
}

func (f *fakeDirectory) Search(_ context.Context, q string) ([]directory.PetMatch, error) {
	f.query = q
	return f.matches, f.err
}

func (f *fakeDirectory) SearchEntities(_ context.Context, q string) ([]directory.Entity, error) {
	f.query = q
	return f.entities, f.err
}

func (f *fakeDirectory) Staff(context.Context, string) ([]directory.StaffAssignment, error) {
	return f.staff, f.err
}

func (f *fakeDirectory) Slots(_ context.Context, _, _ string, date time.Time) ([]directory.Slot, error) {
	f.slotDate = date
	return f.slots, f.err
}

type fakeBooking struct {
	draft *booking.Draft
	appt  *appointment.Appointment
	err   error
	patch booking.Patch
}

func (f *fakeBooking) Start(_ context.Context, p booking.Patch) (*booking.Draft, error) {
	f.patch = p
	return f.draft, f.err
}

func (f *fakeBooking) Get(context.Context, string) (*booking.Draft, error) {
	return f.draft, f.err
}

func (f *fakeBooking) Update(_ context.Context, _ string, p booking.Patch) (*booking.Draft, error) {
	f.patch = p
	return f.draft, f.err
}

func (f *fakeBooking) RefreshSlots(context.Context, string) (*booking.Draft, error) {
	return f.draft, f.err
}

func (f *fakeBooking) Submit(context.Context, string) (*appointment.Appointment, error) {
	return f.appt, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errPingDown = errors.New("connection refused")

type panicGateway struct{}

func (panicGateway) ServeHTTP(http.ResponseWriter, *http.Request) { panic("boom") }
func (panicGateway) Routes() []gateway.Route                      { return nil }
