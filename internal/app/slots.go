package app

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// slotStepMinutes keeps slot starts aligned across durations and therapists.
	slotStepMinutes        = 30
	defaultDurationMinutes = 60
)

// computeSlots walks the day's working window in fixed steps and keeps every
// candidate of the requested duration that overlaps no busy interval.
func computeSlots(t Therapist, day time.Time, durationMinutes int, busy []Interval) ([]AvailableSlot, error) {
	slots := []AvailableSlot{}
	win, ok, err := t.WorkingHours.WindowFor(day)
	if err != nil {
		return nil, err
	}
	if !ok {
		return slots, nil
	}
	date := day.Format(dateLayout)
	for start := win.Start; start+durationMinutes <= win.End; start += slotStepMinutes {
		candidate := Interval{Start: start, End: start + durationMinutes}
		if overlapsAny(candidate, busy) {
			continue
		}
		slots = append(slots, AvailableSlot{
			Date:            date,
			StartTime:       MinutesToTime(candidate.Start),
			EndTime:         MinutesToTime(candidate.End),
			TherapistID:     t.ID,
			TherapistName:   t.Name,
			DurationMinutes: durationMinutes,
		})
	}
	return slots, nil
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

func parseSlotQuery(date string, durationMinutes int) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, validationError("%v", err)
	}
	if durationMinutes <= 0 || durationMinutes > minutesPerDay {
		return time.Time{}, validationError("duration must be between 1 and %d minutes", minutesPerDay)
	}
	return day, nil
}

// GenerateSlots returns the free slots of one therapist on date.
func (a *App) GenerateSlots(ctx context.Context, t Therapist, date string, durationMinutes int) ([]AvailableSlot, error) {
	day, err := parseSlotQuery(date, durationMinutes)
	if err != nil {
		return nil, err
	}
	return a.generateSlots(ctx, t, day, durationMinutes)
}

func (a *App) generateSlots(ctx context.Context, t Therapist, day time.Time, durationMinutes int) ([]AvailableSlot, error) {
	if _, ok, err := t.WorkingHours.WindowFor(day); err != nil || !ok {
		if err != nil {
			return nil, &Error{Kind: KindInternal, Message: "therapist " + t.ID + " working hours", Err: err}
		}
		return []AvailableSlot{}, nil
	}

	date := day.Format(dateLayout)
	appts, err := a.Store.ListAppointments(ctx, AppointmentFilter{
		OrganizationID: t.OrganizationID,
		TherapistID:    t.ID,
		From:           date,
		To:             date,
	})
	if err != nil {
		return nil, classifyStoreError("list appointments", err)
	}

	busy := make([]Interval, 0, len(appts))
	for _, appt := range appts {
		iv, err := appointmentInterval(appt)
		if err != nil {
			log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("skipping appointment with malformed times")
			continue
		}
		busy = append(busy, iv)
	}
	busy = append(busy, a.externalBusy(ctx, t, day)...)

	slots, err := computeSlots(t, day, durationMinutes, busy)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "generate slots", Err: err}
	}
	return slots, nil
}

// externalBusy never fails slot generation; stored appointments stay authoritative.
func (a *App) externalBusy(ctx context.Context, t Therapist, day time.Time) []Interval {
	if a.Busy == nil || len(t.calendarToken) == 0 {
		return nil
	}
	busy, err := a.Busy.BusyIntervals(ctx, t, day)
	if err != nil {
		log.Warn().Err(err).Str("therapist_id", t.ID).Msg("external calendar busy time unavailable")
		return nil
	}
	return busy
}

func appointmentInterval(appt Appointment) (Interval, error) {
	start, err := TimeToMinutes(appt.StartTime)
	if err != nil {
		return Interval{}, err
	}
	end, err := TimeToMinutes(appt.EndTime)
	if err != nil {
		return Interval{}, err
	}
	if end <= start {
		end = start + appt.DurationMinutes
	}
	return Interval{Start: start, End: end}, nil
}

// GenerateTherapistSlots resolves an active therapistID within the
// organization and returns its free slots.
func (a *App) GenerateTherapistSlots(ctx context.Context, orgID, therapistID, date string, durationMinutes int) ([]AvailableSlot, error) {
	day, err := parseSlotQuery(date, durationMinutes)
	if err != nil {
		return nil, err
	}
	t, err := a.lookupActiveTherapist(ctx, orgID, therapistID)
	if err != nil {
		return nil, err
	}
	return a.generateSlots(ctx, *t, day, durationMinutes)
}

// GenerateOrgSlots runs the generator for every active therapist of the
// organization and orders the result by start time, then therapist name.
func (a *App) GenerateOrgSlots(ctx context.Context, orgID, date string, durationMinutes int) ([]AvailableSlot, error) {
	day, err := parseSlotQuery(date, durationMinutes)
	if err != nil {
		return nil, err
	}
	therapists, err := a.Store.ListTherapists(ctx, orgID)
	if err != nil {
		return nil, classifyStoreError("list therapists", err)
	}
	return a.generateOrgSlots(ctx, therapists, day, durationMinutes)
}

func (a *App) generateOrgSlots(ctx context.Context, therapists []Therapist, day time.Time, durationMinutes int) ([]AvailableSlot, error) {
	results := make([][]AvailableSlot, len(therapists))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range therapists {
		g.Go(func() error {
			slots, err := a.generateSlots(gctx, t, day, durationMinutes)
			if err != nil {
				return err
			}
			results[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := []AvailableSlot{}
	for _, r := range results {
		merged = append(merged, r...)
	}
	sortSlots(merged)
	return merged, nil
}

func sortSlots(slots []AvailableSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		if slots[i].TherapistName != slots[j].TherapistName {
			return slots[i].TherapistName < slots[j].TherapistName
		}
		return slots[i].TherapistID < slots[j].TherapistID
	})
}
