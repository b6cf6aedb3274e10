package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type BookingRequest struct {
	TherapistID          string `json:"therapistId"`
	AppointmentRequestID string `json:"appointmentRequestId,omitempty"`
	ClientName           string `json:"clientName"`
	ClientPhone          string `json:"clientPhone"`
	ClientEmail          string `json:"clientEmail,omitempty"`
	AppointmentType      string `json:"appointmentType"`
	AppointmentDate      string `json:"appointmentDate"`
	StartTime            string `json:"startTime"`
	DurationMinutes      int    `json:"durationMinutes"`
	Notes                string `json:"notes,omitempty"`
}

type BookingResult struct {
	Appointment Appointment `json:"appointment"`
	// RequestUpdated is false when no originating request was given or its
	// status update failed; the booking stands either way.
	RequestUpdated bool `json:"requestUpdated"`
}

const defaultAppointmentType = "consultation"

func (a *App) validateBooking(req *BookingRequest) (start int, err error) {
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)

	var missing []string
	if req.TherapistID == "" {
		missing = append(missing, "therapistId")
	}
	if req.ClientName == "" {
		missing = append(missing, "clientName")
	}
	if req.ClientPhone == "" {
		missing = append(missing, "clientPhone")
	}
	if req.AppointmentDate == "" {
		missing = append(missing, "appointmentDate")
	}
	if req.StartTime == "" {
		missing = append(missing, "startTime")
	}
	if len(missing) > 0 {
		return 0, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	if _, err := uuid.Parse(req.TherapistID); err != nil {
		return 0, validationError("invalid therapistId")
	}

	day, err := ParseDate(req.AppointmentDate)
	if err != nil {
		return 0, validationError("%v", err)
	}
	if day.Before(a.today()) {
		return 0, validationError("appointmentDate %s is in the past", req.AppointmentDate)
	}
	start, err = TimeToMinutes(req.StartTime)
	if err != nil {
		return 0, validationError("%v", err)
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultDurationMinutes
	}
	if req.DurationMinutes < 0 {
		return 0, validationError("durationMinutes must be positive")
	}
	if start+req.DurationMinutes >= minutesPerDay {
		return 0, validationError("appointment must end before midnight")
	}
	if req.AppointmentType == "" {
		req.AppointmentType = defaultAppointmentType
	}
	return start, nil
}

// Book validates req and persists a scheduled appointment. When the booking
// came from an appointment request, that request is marked scheduled on a
// best-effort basis.
func (a *App) Book(ctx context.Context, orgID string, req BookingRequest) (*BookingResult, error) {
	start, err := a.validateBooking(&req)
	if err != nil {
		return nil, err
	}

	appt := Appointment{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		TherapistID:     req.TherapistID,
		ClientName:      req.ClientName,
		ClientPhone:     req.ClientPhone,
		ClientEmail:     req.ClientEmail,
		AppointmentType: req.AppointmentType,
		AppointmentDate: req.AppointmentDate,
		StartTime:       MinutesToTime(start),
		EndTime:         MinutesToTime(start + req.DurationMinutes),
		DurationMinutes: req.DurationMinutes,
		Status:          AppointmentScheduled,
		Notes:           req.Notes,
	}
	requestID := strings.TrimSpace(req.AppointmentRequestID)
	if requestID != "" {
		if _, err := uuid.Parse(requestID); err != nil {
			log.Warn().Str("appointment_request_id", requestID).Msg("ignoring malformed appointment request id on booking")
			requestID = ""
		}
	}
	appt.AppointmentRequestID = requestID

	if err := a.Store.CreateAppointment(ctx, &appt); err != nil {
		return nil, classifyStoreError("create appointment", err)
	}
	log.Info().
		Str("organization_id", orgID).
		Str("appointment_id", appt.ID).
		Str("therapist_id", appt.TherapistID).
		Str("date", appt.AppointmentDate).
		Str("start", appt.StartTime).
		Msg("appointment booked")

	result := &BookingResult{Appointment: appt}
	if requestID == "" {
		return result, nil
	}
	n, err := a.Store.UpdateRequestStatus(ctx, orgID, requestID, RequestScheduled, appt.ID, nil)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("appointment_request_id", requestID).Msg("booking kept; request status update failed")
	case n == 0:
		log.Warn().Str("appointment_request_id", requestID).Msg("booking kept; appointment request not found")
	default:
		result.RequestUpdated = true
	}
	return result, nil
}

type SlotRefKind string

const (
	RefRequest     SlotRefKind = "request"
	RefCallSession SlotRefKind = "call_session"
	RefAppointment SlotRefKind = "appointment"
)

// SlotRef identifies what a calendar cell represents. An empty Kind falls
// back to matching ID against every identifier space.
type SlotRef struct {
	Kind SlotRefKind `json:"kind,omitempty"`
	ID   string      `json:"id"`
}

type TransitionResult struct {
	RequestsUpdated     int64 `json:"requestsUpdated"`
	AppointmentsUpdated int64 `json:"appointmentsUpdated"`
}

func (r TransitionResult) Total() int64 { return r.RequestsUpdated + r.AppointmentsUpdated }

func (ref SlotRef) validate() error {
	if strings.TrimSpace(ref.ID) == "" {
		return validationError("slot id is required")
	}
	switch ref.Kind {
	case "", RefRequest, RefCallSession, RefAppointment:
		return nil
	}
	return validationError("unknown slot kind %q", ref.Kind)
}

func (ref SlotRef) matches(kind SlotRefKind) bool {
	return ref.Kind == "" || ref.Kind == kind
}

// Confirm advances whatever ref points at toward confirmed. Completed and
// cancelled requests are left as they are. Unmatched ids succeed with zero
// updates.
func (a *App) Confirm(ctx context.Context, orgID string, ref SlotRef) (TransitionResult, error) {
	var res TransitionResult
	if err := ref.validate(); err != nil {
		return res, err
	}
	if _, err := uuid.Parse(ref.ID); err != nil {
		return res, nil
	}

	if ref.matches(RefRequest) {
		n, err := a.Store.UpdateRequestStatus(ctx, orgID, ref.ID, RequestConfirmed, "", finishedStatuses)
		if err != nil {
			return res, classifyStoreError("confirm request", err)
		}
		res.RequestsUpdated += n
	}
	if ref.matches(RefCallSession) {
		n, err := a.Store.UpdateCallSessionRequestStatus(ctx, orgID, ref.ID, RequestConfirmed, finishedStatuses)
		if err != nil {
			return res, classifyStoreError("confirm call session requests", err)
		}
		res.RequestsUpdated += n
	}
	if ref.matches(RefAppointment) {
		n, err := a.Store.UpdateRequestStatusByAppointment(ctx, orgID, ref.ID, RequestConfirmed, finishedStatuses)
		if err != nil {
			return res, classifyStoreError("confirm appointment request", err)
		}
		res.RequestsUpdated += n
	}
	log.Info().Str("organization_id", orgID).Str("kind", string(ref.Kind)).Str("id", ref.ID).
		Int64("updated", res.Total()).Msg("slot confirmed")
	return res, nil
}

// Cancel marks whatever ref points at as cancelled. Completed requests are
// left as they are. Rows are never deleted.
func (a *App) Cancel(ctx context.Context, orgID string, ref SlotRef) (TransitionResult, error) {
	var res TransitionResult
	if err := ref.validate(); err != nil {
		return res, err
	}
	if _, err := uuid.Parse(ref.ID); err != nil {
		return res, nil
	}

	if ref.matches(RefRequest) {
		n, err := a.Store.UpdateRequestStatus(ctx, orgID, ref.ID, RequestCancelled, "", finishedStatuses)
		if err != nil {
			return res, classifyStoreError("cancel request", err)
		}
		res.RequestsUpdated += n
	}
	if ref.matches(RefCallSession) {
		n, err := a.Store.UpdateCallSessionRequestStatus(ctx, orgID, ref.ID, RequestCancelled, finishedStatuses)
		if err != nil {
			return res, classifyStoreError("cancel call session requests", err)
		}
		res.RequestsUpdated += n
	}
	if ref.matches(RefAppointment) {
		n, err := a.Store.UpdateAppointmentStatus(ctx, orgID, ref.ID,
			[]AppointmentStatus{AppointmentScheduled}, AppointmentCancelled)
		if err != nil {
			return res, classifyStoreError("cancel appointment", err)
		}
		res.AppointmentsUpdated += n
	}
	log.Info().Str("organization_id", orgID).Str("kind", string(ref.Kind)).Str("id", ref.ID).
		Int64("updated", res.Total()).Msg("slot cancelled")
	return res, nil
}

// SetAppointmentStatus moves a scheduled appointment to a terminal status.
func (a *App) SetAppointmentStatus(ctx context.Context, orgID, id string, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() || to == AppointmentScheduled {
		return nil, validationError("invalid target status %q", to)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFoundError("appointment %s not found", id)
	}
	appt, err := a.Store.GetAppointment(ctx, orgID, id)
	if err != nil {
		return nil, classifyStoreError("get appointment", err)
	}
	if appt.Status != AppointmentScheduled {
		return nil, validationError("appointment is %s; only scheduled appointments can change status", appt.Status)
	}
	n, err := a.Store.UpdateAppointmentStatus(ctx, orgID, id, []AppointmentStatus{AppointmentScheduled}, to)
	if err != nil {
		return nil, classifyStoreError("update appointment status", err)
	}
	if n == 0 {
		return nil, &Error{Kind: KindConflict, Message: "appointment status changed concurrently"}
	}
	appt.Status = to
	return appt, nil
}

// ListAppointments returns non-cancelled appointments between from and to inclusive.
func (a *App) ListAppointments(ctx context.Context, orgID, from, to, therapistID string) ([]Appointment, error) {
	fromDay, err := ParseDate(from)
	if err != nil {
		return nil, validationError("from: %v", err)
	}
	toDay, err := ParseDate(to)
	if err != nil {
		return nil, validationError("to: %v", err)
	}
	if toDay.Before(fromDay) {
		return nil, validationError("to must not be before from")
	}
	appts, err := a.Store.ListAppointments(ctx, AppointmentFilter{
		OrganizationID: orgID,
		TherapistID:    therapistID,
		From:           from,
		To:             to,
	})
	if err != nil {
		return nil, classifyStoreError("list appointments", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}
