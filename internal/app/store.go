package app

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrTherapistNotFound = errors.New("therapist not found in organization")
	ErrSlotTaken         = errors.New("therapist already has an appointment in this interval")
)

// AppointmentFilter selects appointments within one organization. Dates are
// inclusive YYYY-MM-DD bounds; empty TherapistID means every therapist.
type AppointmentFilter struct {
	OrganizationID   string
	TherapistID      string
	From             string
	To               string
	IncludeCancelled bool
}

// Store is the persistence boundary of the scheduling core. Every method is
// scoped by organization id.
type Store interface {
	// ListTherapists returns active therapists ordered by name.
	ListTherapists(ctx context.Context, orgID string) ([]Therapist, error)
	GetTherapist(ctx context.Context, orgID, id string) (*Therapist, error)
	CreateTherapist(ctx context.Context, t *Therapist) error
	UpdateWorkingHours(ctx context.Context, orgID, id string, wh WorkingHours) (int64, error)
	DeactivateTherapist(ctx context.Context, orgID, id string) (int64, error)
	SaveCalendarToken(ctx context.Context, orgID, therapistID string, token []byte) (int64, error)

	// ListAppointments returns matching appointments ordered by date, start time.
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, orgID, id string) (*Appointment, error)
	// CreateAppointment inserts a after checking, in the same transaction, that
	// the therapist exists in the organization (ErrTherapistNotFound) and has
	// no overlapping non-cancelled appointment (ErrSlotTaken).
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, orgID, id string, from []AppointmentStatus, to AppointmentStatus) (int64, error)

	// ListOpenRequestsForDate returns non-cancelled requests whose preferred
	// dates contain date.
	ListOpenRequestsForDate(ctx context.Context, orgID, date string) ([]AppointmentRequest, error)
	// The request status updates leave rows whose current status is in
	// except untouched.
	UpdateRequestStatus(ctx context.Context, orgID, id string, status RequestStatus, appointmentID string, except []RequestStatus) (int64, error)
	UpdateCallSessionRequestStatus(ctx context.Context, orgID, callSessionID string, status RequestStatus, except []RequestStatus) (int64, error)
	UpdateRequestStatusByAppointment(ctx context.Context, orgID, appointmentID string, status RequestStatus, except []RequestStatus) (int64, error)
}
