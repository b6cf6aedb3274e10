package app

import (
	"encoding/json"
	"time"
)

type Therapist struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	IsActive       bool         `json:"isActive"`
	WorkingHours   WorkingHours `json:"workingHours"`
	CalendarLinked bool         `json:"calendarLinked"`
	CreatedAt      time.Time    `json:"createdAt,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt,omitempty"`

	// calendarToken is the stored Google OAuth token, never serialised.
	calendarToken []byte
}

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Valid reports whether s is one of the persisted appointment statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// Appointment is a committed booking. It occupies [StartTime, EndTime) on the
// therapist's calendar unless cancelled.
type Appointment struct {
	ID                   string            `json:"id"`
	OrganizationID       string            `json:"organizationId"`
	AppointmentRequestID string            `json:"appointmentRequestId,omitempty"`
	TherapistID          string            `json:"therapistId"`
	TherapistName        string            `json:"therapistName,omitempty"`
	ClientName           string            `json:"clientName"`
	ClientPhone          string            `json:"clientPhone"`
	ClientEmail          string            `json:"clientEmail,omitempty"`
	AppointmentType      string            `json:"appointmentType"`
	AppointmentDate      string            `json:"appointmentDate"`
	StartTime            string            `json:"startTime"`
	EndTime              string            `json:"endTime"`
	DurationMinutes      int               `json:"durationMinutes"`
	Status               AppointmentStatus `json:"status"`
	Notes                string            `json:"notes,omitempty"`
	CreatedAt            time.Time         `json:"createdAt,omitempty"`
	UpdatedAt            time.Time         `json:"updatedAt,omitempty"`
}

type ClientInfo struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

type AppointmentDetails struct {
	AppointmentType string   `json:"appointmentType"`
	Urgency         int      `json:"urgency,omitempty"`
	Duration        int      `json:"duration,omitempty"`
	PreferredDates  []string `json:"preferredDates"`
	PreferredTimes  []string `json:"preferredTimes"`
	Notes           string   `json:"notes,omitempty"`
	TherapistID     string   `json:"therapistId,omitempty"`
}

// AppointmentRequest is the scheduling preference captured by the voice
// assistant. Status is already normalised; RawStatus keeps the stored string.
type AppointmentRequest struct {
	ID            string             `json:"id"`
	CallSessionID string             `json:"callSessionId"`
	Client        ClientInfo         `json:"clientInfo"`
	Details       AppointmentDetails `json:"appointmentDetails"`
	IntakeInfo    json.RawMessage    `json:"intakeInfo,omitempty"`
	Status        RequestStatus      `json:"status"`
	RawStatus     string             `json:"-"`
	AppointmentID string             `json:"appointmentId,omitempty"`
	CreatedAt     time.Time          `json:"createdAt,omitempty"`
}

// DurationOrDefault returns the declared duration, 60 minutes when unset.
func (r AppointmentRequest) DurationOrDefault() int {
	if r.Details.Duration > 0 {
		return r.Details.Duration
	}
	return defaultDurationMinutes
}

// AvailableSlot is computed on every read and never persisted.
type AvailableSlot struct {
	Date            string `json:"date"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	TherapistID     string `json:"therapistId"`
	TherapistName   string `json:"therapistName"`
	DurationMinutes int    `json:"durationMinutes"`
}

// Interval is a half-open span of minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}
