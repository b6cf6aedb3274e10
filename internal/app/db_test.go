package app

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. Tests using
// it are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seedOrganization(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `INSERT INTO organizations (id, name) VALUES ($1, $2)`, id, "Test Practice "+id[:8])
	require.NoError(t, err)
	return id
}

func seedRequest(t *testing.T, pool *pgxpool.Pool, orgID, status, details string) (sessionID, requestID string) {
	t.Helper()
	ctx := context.Background()
	sessionID, requestID = uuid.NewString(), uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO call_sessions (id, organization_id) VALUES ($1, $2)`, sessionID, orgID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO appointment_requests (id, call_session_id, client_info, appointment_details, status)
		 VALUES ($1, $2, '{"name":"Caller","phone":"555-0199"}', $3::jsonb, $4)`,
		requestID, sessionID, details, status)
	require.NoError(t, err)
	return sessionID, requestID
}

func TestPostgresStore_BookingFlow(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	orgID := seedOrganization(t, pool)
	app := &App{Store: NewPostgresStore(pool), Now: fixedNow}

	th, err := app.CreateTherapist(ctx, orgID, CreateTherapistRequest{Name: "Dr. Adams"})
	require.NoError(t, err)

	_, requestID := seedRequest(t, pool, orgID, "pending_review",
		`{"preferredDates":["2024-01-22"],"preferredTimes":["2:00 PM"],"duration":60}`)

	view, err := app.BuildDaySlots(ctx, orgID, testMonday, 60, "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Counts.Pending)
	assert.Equal(t, 14, view.Counts.Available)

	req := bookingFor(*th)
	req.AppointmentDate = testMonday
	req.AppointmentRequestID = requestID
	res, err := app.Book(ctx, orgID, req)
	require.NoError(t, err)
	assert.True(t, res.RequestUpdated)
	assert.Equal(t, "Dr. Adams", res.Appointment.TherapistName)

	_, err = app.Book(ctx, orgID, req)
	assert.Equal(t, KindConflict, KindOf(err))

	slots, err := app.GenerateTherapistSlots(ctx, orgID, th.ID, testMonday, 60)
	require.NoError(t, err)
	assert.NotContains(t, startTimes(slots), "10:00")
	assert.NotContains(t, startTimes(slots), "09:30")

	tr, err := app.Confirm(ctx, orgID, SlotRef{Kind: RefAppointment, ID: res.Appointment.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tr.RequestsUpdated)

	tr, err = app.Cancel(ctx, orgID, SlotRef{Kind: RefAppointment, ID: res.Appointment.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tr.AppointmentsUpdated)

	// the cancelled row stays, and the slot can be booked again
	appts, err := app.Store.ListAppointments(ctx, AppointmentFilter{OrganizationID: orgID, From: testMonday, To: testMonday, IncludeCancelled: true})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, AppointmentCancelled, appts[0].Status)

	_, err = app.Book(ctx, orgID, req)
	assert.NoError(t, err)
}

func TestPostgresStore_Tenancy(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	orgA, orgB := seedOrganization(t, pool), seedOrganization(t, pool)
	app := &App{Store: NewPostgresStore(pool), Now: fixedNow}

	th, err := app.CreateTherapist(ctx, orgA, CreateTherapistRequest{Name: "Dr. Adams"})
	require.NoError(t, err)

	_, err = app.Book(ctx, orgB, bookingFor(*th))
	assert.Equal(t, KindReferential, KindOf(err))

	_, err = app.GenerateTherapistSlots(ctx, orgB, th.ID, testMonday, 60)
	assert.Equal(t, KindNotFound, KindOf(err))

	session, _ := seedRequest(t, pool, orgA, "new", `{"preferredDates":["2024-01-22"]}`)
	tr, err := app.Confirm(ctx, orgB, SlotRef{Kind: RefCallSession, ID: session})
	require.NoError(t, err)
	assert.Zero(t, tr.Total())

	tr, err = app.Confirm(ctx, orgA, SlotRef{Kind: RefCallSession, ID: session})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tr.RequestsUpdated)
}

func TestPostgresStore_Therapists(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	orgID := seedOrganization(t, pool)
	app := &App{Store: NewPostgresStore(pool), Now: fixedNow}

	th, err := app.CreateTherapist(ctx, orgID, CreateTherapistRequest{Name: "Dr. Baker", Email: "baker@example.com"})
	require.NoError(t, err)

	wh := DefaultWorkingHours()
	wh.Saturday = DayHours{Start: "10:00", End: "12:00", Enabled: true}
	updated, err := app.UpdateWorkingHours(ctx, orgID, th.ID, wh)
	require.NoError(t, err)
	assert.Equal(t, wh, updated.WorkingHours)

	slots, err := app.GenerateTherapistSlots(ctx, orgID, th.ID, "2024-01-27", 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:00"}, startTimes(slots))

	require.NoError(t, app.DeactivateTherapist(ctx, orgID, th.ID))
	ts, err := app.ListTherapists(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, ts)
	assert.Equal(t, KindNotFound, KindOf(app.DeactivateTherapist(ctx, orgID, th.ID)))
}
