package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

type SlotKind string

const (
	SlotAvailable SlotKind = "available"
	SlotBooked    SlotKind = "booked"
	SlotPending   SlotKind = "pending"
)

// DaySlot is the one shape the calendar renders for available, booked and
// pending entries alike.
type DaySlot struct {
	Date            string   `json:"date"`
	StartTime       string   `json:"startTime"`
	EndTime         string   `json:"endTime"`
	TherapistID     string   `json:"therapistId"`
	TherapistName   string   `json:"therapistName"`
	DurationMinutes int      `json:"durationMinutes"`
	IsBooked        bool     `json:"isBooked"`
	Kind            SlotKind `json:"kind"`
	Ref             *SlotRef `json:"ref,omitempty"`

	AppointmentID   string `json:"appointmentId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	ClientName      string `json:"clientName,omitempty"`
	ClientPhone     string `json:"clientPhone,omitempty"`
	AppointmentType string `json:"appointmentType,omitempty"`
	Status          string `json:"status,omitempty"`
	// PlaceholderTherapist marks pending entries whose request named no
	// therapist and were assigned the organization's first one.
	PlaceholderTherapist bool `json:"placeholderTherapist,omitempty"`
}

type DayCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Booked    int `json:"booked"`
	Pending   int `json:"pending"`
}

type DayView struct {
	Date           string    `json:"date"`
	AllSlots       []DaySlot `json:"allSlots"`
	AvailableSlots []DaySlot `json:"availableSlots"`
	BookedSlots    []DaySlot `json:"bookedSlots"`
	PendingSlots   []DaySlot `json:"pendingSlots"`
	Counts         DayCounts `json:"counts"`
}

type slotKey struct {
	therapistID string
	start       string
}

// BuildDaySlots merges computed availability, booked appointments and open
// appointment requests for one day. Booked and pending entries take the place
// of an available slot at the same therapist and start time.
func (a *App) BuildDaySlots(ctx context.Context, orgID, date string, durationMinutes int, therapistID string) (*DayView, error) {
	day, err := parseSlotQuery(date, durationMinutes)
	if err != nil {
		return nil, err
	}
	therapists, err := a.Store.ListTherapists(ctx, orgID)
	if err != nil {
		return nil, classifyStoreError("list therapists", err)
	}

	scoped := therapists
	if therapistID != "" {
		scoped = nil
		for _, t := range therapists {
			if t.ID == therapistID {
				scoped = append(scoped, t)
			}
		}
	}
	free, err := a.generateOrgSlots(ctx, scoped, day, durationMinutes)
	if err != nil {
		return nil, err
	}

	appts, err := a.Store.ListAppointments(ctx, AppointmentFilter{
		OrganizationID: orgID,
		TherapistID:    therapistID,
		From:           date,
		To:             date,
	})
	if err != nil {
		return nil, classifyStoreError("list appointments", err)
	}
	booked := make([]DaySlot, 0, len(appts))
	for _, appt := range appts {
		booked = append(booked, bookedSlot(appt))
	}

	requests, err := a.Store.ListOpenRequestsForDate(ctx, orgID, date)
	if err != nil {
		return nil, classifyStoreError("list appointment requests", err)
	}
	pending := pendingSlots(requests, therapists, date)
	available := withoutClaimedStarts(free, pending)
	if therapistID != "" {
		kept := []DaySlot{}
		for _, p := range pending {
			if p.TherapistID == therapistID {
				kept = append(kept, p)
			}
		}
		pending = kept
	}

	all := mergeSlots(available, booked, pending)

	return &DayView{
		Date:           date,
		AllSlots:       all,
		AvailableSlots: available,
		BookedSlots:    booked,
		PendingSlots:   pending,
		Counts: DayCounts{
			Total:     len(all),
			Available: len(available),
			Booked:    len(booked),
			Pending:   len(pending),
		},
	}, nil
}

func bookedSlot(appt Appointment) DaySlot {
	return DaySlot{
		Date:            appt.AppointmentDate,
		StartTime:       appt.StartTime,
		EndTime:         appt.EndTime,
		TherapistID:     appt.TherapistID,
		TherapistName:   appt.TherapistName,
		DurationMinutes: appt.DurationMinutes,
		IsBooked:        true,
		Kind:            SlotBooked,
		Ref:             &SlotRef{Kind: RefAppointment, ID: appt.ID},
		AppointmentID:   appt.ID,
		RequestID:       appt.AppointmentRequestID,
		ClientName:      appt.ClientName,
		ClientPhone:     appt.ClientPhone,
		AppointmentType: appt.AppointmentType,
		Status:          string(appt.Status),
	}
}

// pendingSlots fans each active request out into one entry per preferred
// time. therapists must be ordered by name; the first is the placeholder for
// requests without a usable assignment.
func pendingSlots(requests []AppointmentRequest, therapists []Therapist, date string) []DaySlot {
	byID := make(map[string]Therapist, len(therapists))
	for _, t := range therapists {
		byID[t.ID] = t
	}

	out := []DaySlot{}
	for _, req := range requests {
		if !req.Status.IsActive() || !containsString(req.Details.PreferredDates, date) {
			continue
		}
		therapist, assigned := byID[req.Details.TherapistID]
		if !assigned && len(therapists) > 0 {
			therapist = therapists[0]
		}
		duration := req.DurationOrDefault()
		for _, raw := range req.Details.PreferredTimes {
			start, err := NormalizePreferredTime(raw)
			if err != nil {
				log.Warn().Err(err).Str("appointment_request_id", req.ID).Msg("skipping preferred time")
				continue
			}
			startMin, _ := TimeToMinutes(start)
			out = append(out, DaySlot{
				Date:                 date,
				StartTime:            start,
				EndTime:              MinutesToTime(startMin + duration),
				TherapistID:          therapist.ID,
				TherapistName:        therapist.Name,
				DurationMinutes:      duration,
				IsBooked:             true,
				Kind:                 SlotPending,
				Ref:                  &SlotRef{Kind: RefRequest, ID: req.ID},
				RequestID:            req.ID,
				ClientName:           req.Client.Name,
				ClientPhone:          req.Client.Phone,
				AppointmentType:      req.Details.AppointmentType,
				Status:               string(req.Status),
				PlaceholderTherapist: !assigned,
			})
		}
	}
	return out
}

// withoutClaimedStarts drops available slots spoken for by a pending entry.
// Placeholder-assigned entries claim their start time across every therapist;
// assigned ones claim only their own therapist's slot.
func withoutClaimedStarts(free []AvailableSlot, pending []DaySlot) []DaySlot {
	anyTherapist := make(map[string]bool)
	exact := make(map[slotKey]bool)
	for _, p := range pending {
		if p.PlaceholderTherapist {
			anyTherapist[p.StartTime] = true
		} else {
			exact[slotKey{p.TherapistID, p.StartTime}] = true
		}
	}

	out := make([]DaySlot, 0, len(free))
	for _, s := range free {
		if anyTherapist[s.StartTime] || exact[slotKey{s.TherapistID, s.StartTime}] {
			continue
		}
		out = append(out, DaySlot{
			Date:            s.Date,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			TherapistID:     s.TherapistID,
			TherapistName:   s.TherapistName,
			DurationMinutes: s.DurationMinutes,
			Kind:            SlotAvailable,
		})
	}
	return out
}

// mergeSlots unions the lists keyed by (therapist, start). A booked entry
// replaces an unbooked one; between two booked entries the first seen wins.
func mergeSlots(lists ...[]DaySlot) []DaySlot {
	index := make(map[slotKey]int)
	merged := []DaySlot{}
	for _, list := range lists {
		for _, s := range list {
			k := slotKey{s.TherapistID, s.StartTime}
			i, seen := index[k]
			switch {
			case !seen:
				index[k] = len(merged)
				merged = append(merged, s)
			case s.IsBooked && !merged[i].IsBooked:
				merged[i] = s
			}
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].StartTime != merged[j].StartTime {
			return merged[i].StartTime < merged[j].StartTime
		}
		return merged[i].TherapistName < merged[j].TherapistName
	})
	return merged
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
