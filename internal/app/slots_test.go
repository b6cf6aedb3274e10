package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrg    = "6f1c2a9e-1111-4c1e-9a51-000000000001"
	otherOrg   = "6f1c2a9e-2222-4c1e-9a51-000000000002"
	testMonday = "2024-01-22"
)

func fixedNow() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) }

func newTestApp(store *memStore) *App {
	return &App{Store: store, Now: fixedNow, Location: time.UTC}
}

func startTimes(slots []AvailableSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}

func TestGenerateSlots_SkipsExistingAppointment(t *testing.T) {
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())
	store.addAppointment(testOrg, th, testMonday, "10:00", "11:00", AppointmentScheduled)

	slots, err := newTestApp(store).GenerateSlots(context.Background(), th, testMonday, 60)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"09:00", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30",
		"14:00", "14:30", "15:00", "15:30", "16:00",
	}, startTimes(slots))
	for _, s := range slots {
		assert.Equal(t, th.ID, s.TherapistID)
		assert.Equal(t, "Dr. Adams", s.TherapistName)
		assert.Equal(t, 60, s.DurationMinutes)
		assert.Equal(t, testMonday, s.Date)
	}
}

func TestGenerateSlots_CancelledAppointmentsDoNotBlock(t *testing.T) {
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())
	store.addAppointment(testOrg, th, testMonday, "10:00", "11:00", AppointmentCancelled)

	slots, err := newTestApp(store).GenerateSlots(context.Background(), th, testMonday, 60)
	require.NoError(t, err)
	assert.Contains(t, startTimes(slots), "10:00")
	assert.Len(t, slots, 15)
}

func TestGenerateSlots_DisabledDayIsEmpty(t *testing.T) {
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())

	slots, err := newTestApp(store).GenerateSlots(context.Background(), th, "2024-01-27", 60) // saturday
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestGenerateSlots_DurationLongerThanWindow(t *testing.T) {
	store := newMemStore()
	wh := DefaultWorkingHours()
	wh.Monday = DayHours{Start: "09:00", End: "10:00", Enabled: true}
	th := store.addTherapist(testOrg, "Dr. Adams", wh)

	slots, err := newTestApp(store).GenerateSlots(context.Background(), th, testMonday, 90)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_InvalidInput(t *testing.T) {
	app := newTestApp(newMemStore())
	th := Therapist{ID: "t", OrganizationID: testOrg, WorkingHours: DefaultWorkingHours()}

	_, err := app.GenerateSlots(context.Background(), th, "22-01-2024", 60)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = app.GenerateSlots(context.Background(), th, testMonday, 0)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestGenerateSlots_StoreFailureIsInternal(t *testing.T) {
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())
	store.listAppointmentsErr = errors.New("connection reset")

	_, err := newTestApp(store).GenerateSlots(context.Background(), th, testMonday, 60)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorContains(t, err, "connection reset")
}

func TestComputeSlots_NoOverlapAndWindowRespect(t *testing.T) {
	th := Therapist{ID: "t1", Name: "T", WorkingHours: DefaultWorkingHours()}
	monday, _ := ParseDate(testMonday)
	busy := []Interval{{Start: 9*60 + 45, End: 10*60 + 15}, {Start: 13 * 60, End: 13*60 + 30}, {Start: 16*60 + 50, End: 17 * 60}}

	for _, duration := range []int{15, 30, 45, 60, 90, 120} {
		slots, err := computeSlots(th, monday, duration, busy)
		require.NoError(t, err)
		for _, s := range slots {
			start, _ := TimeToMinutes(s.StartTime)
			end, _ := TimeToMinutes(s.EndTime)
			iv := Interval{Start: start, End: end}

			assert.Equal(t, duration, end-start)
			assert.GreaterOrEqual(t, start, 9*60)
			assert.LessOrEqual(t, end, 17*60)
			assert.Zero(t, (start-9*60)%slotStepMinutes)
			assert.False(t, overlapsAny(iv, busy), "slot %s overlaps busy time", s.StartTime)
		}
	}
}

func TestComputeSlots_TouchingEndpointsAllowed(t *testing.T) {
	th := Therapist{ID: "t1", Name: "T", WorkingHours: DefaultWorkingHours()}
	monday, _ := ParseDate(testMonday)

	slots, err := computeSlots(th, monday, 60, []Interval{{Start: 10 * 60, End: 11 * 60}})
	require.NoError(t, err)
	starts := startTimes(slots)
	assert.Contains(t, starts, "09:00") // ends exactly at 10:00
	assert.Contains(t, starts, "11:00") // starts exactly at 11:00
	assert.NotContains(t, starts, "09:30")
	assert.NotContains(t, starts, "10:30")
}

func TestGenerateOrgSlots_OrderedByStartThenName(t *testing.T) {
	store := newMemStore()
	wh := DefaultWorkingHours()
	wh.Monday = DayHours{Start: "09:00", End: "10:30", Enabled: true}
	zoe := store.addTherapist(testOrg, "Zoe", wh)
	store.addTherapist(testOrg, "Abe", wh)
	store.addTherapist(otherOrg, "Other Org", wh)
	store.addAppointment(testOrg, zoe, testMonday, "09:00", "09:30", AppointmentScheduled)

	app := newTestApp(store)
	slots, err := app.GenerateOrgSlots(context.Background(), testOrg, testMonday, 60)
	require.NoError(t, err)

	var got []string
	for _, s := range slots {
		got = append(got, s.StartTime+" "+s.TherapistName)
	}
	assert.Equal(t, []string{"09:00 Abe", "09:30 Abe", "09:30 Zoe"}, got)
}

func TestGenerateOrgSlots_Deterministic(t *testing.T) {
	store := newMemStore()
	for _, name := range []string{"Carol", "Bob", "Alice", "Bob"} {
		store.addTherapist(testOrg, name, DefaultWorkingHours())
	}
	app := newTestApp(store)

	first, err := app.GenerateOrgSlots(context.Background(), testOrg, testMonday, 45)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := app.GenerateOrgSlots(context.Background(), testOrg, testMonday, 45)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Equal(t, "Alice", first[0].TherapistName)
	assert.Equal(t, "Bob", first[1].TherapistName)
}

type fakeBusy struct {
	intervals []Interval
	err       error
	calls     int
}

func (f *fakeBusy) BusyIntervals(context.Context, Therapist, time.Time) ([]Interval, error) {
	f.calls++
	return f.intervals, f.err
}

func TestGenerateSlots_ExternalBusyTime(t *testing.T) {
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())
	_, err := store.SaveCalendarToken(context.Background(), testOrg, th.ID, []byte(`{"access_token":"x"}`))
	require.NoError(t, err)
	linked, err := store.GetTherapist(context.Background(), testOrg, th.ID)
	require.NoError(t, err)

	busy := &fakeBusy{intervals: []Interval{{Start: 9 * 60, End: 12 * 60}}}
	app := newTestApp(store)
	app.Busy = busy

	slots, err := app.GenerateSlots(context.Background(), *linked, testMonday, 60)
	require.NoError(t, err)
	assert.Equal(t, "12:00", slots[0].StartTime)

	// a failing calendar falls back to stored appointments only
	busy.err = errors.New("breaker open")
	slots, err = app.GenerateSlots(context.Background(), *linked, testMonday, 60)
	require.NoError(t, err)
	assert.Equal(t, "09:00", slots[0].StartTime)

	// therapists without a linked calendar are never queried
	busy.calls = 0
	_, err = app.GenerateSlots(context.Background(), th, testMonday, 60)
	require.NoError(t, err)
	assert.Zero(t, busy.calls)
}

func TestGenerateTherapistSlots_DeactivatedTherapist(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	th := store.addTherapist(testOrg, "Dr. Adams", DefaultWorkingHours())
	app := newTestApp(store)

	slots, err := app.GenerateTherapistSlots(ctx, testOrg, th.ID, testMonday, 60)
	require.NoError(t, err)
	require.Len(t, slots, 15)

	require.NoError(t, app.DeactivateTherapist(ctx, testOrg, th.ID))

	slots, err = app.GenerateTherapistSlots(ctx, testOrg, th.ID, testMonday, 60)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Empty(t, slots)

	org, err := app.GenerateOrgSlots(ctx, testOrg, testMonday, 60)
	require.NoError(t, err)
	assert.Empty(t, org)
}
