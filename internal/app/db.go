package app

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// NewPool opens a pgx pool sized by maxConns and minConns and verifies it
// with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore implements Store on a pgx pool. Each call acquires a pooled
// connection for its own duration only.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: pool}
}

// parseIDs parses every id as a UUID; ok is false if any is malformed, in
// which case no row can match.
func parseIDs(ids ...string) ([]uuid.UUID, bool) {
	out := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, false
		}
		out[i] = u
	}
	return out, true
}

func clockParam(hhmm string) (pgtype.Time, error) {
	m, err := TimeToMinutes(hhmm)
	if err != nil {
		return pgtype.Time{}, err
	}
	return pgtype.Time{Microseconds: int64(m) * int64(time.Minute/time.Microsecond), Valid: true}, nil
}

const therapistColumns = `id::text, organization_id::text, name, COALESCE(email, ''), is_active,
	working_hours, google_token, created_at, updated_at`

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var (
		t     Therapist
		hours []byte
	)
	if err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Email, &t.IsActive,
		&hours, &t.calendarToken, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hours, &t.WorkingHours); err != nil {
		return nil, fmt.Errorf("decode working hours for therapist %s: %w", t.ID, err)
	}
	t.CalendarLinked = len(t.calendarToken) > 0
	return &t, nil
}

func (s *PostgresStore) ListTherapists(ctx context.Context, orgID string) ([]Therapist, error) {
	ids, ok := parseIDs(orgID)
	if !ok {
		return nil, nil
	}
	q := `SELECT ` + therapistColumns + `
	      FROM therapists WHERE organization_id=$1 AND is_active
	      ORDER BY name, id`
	rows, err := s.DB.Query(ctx, q, ids[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Therapist
	for rows.Next() {
		t, err := scanTherapist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTherapist(ctx context.Context, orgID, id string) (*Therapist, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return nil, ErrNotFound
	}
	q := `SELECT ` + therapistColumns + ` FROM therapists WHERE organization_id=$1 AND id=$2`
	t, err := scanTherapist(s.DB.QueryRow(ctx, q, ids[0], ids[1]))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) CreateTherapist(ctx context.Context, t *Therapist) error {
	ids, ok := parseIDs(t.ID, t.OrganizationID)
	if !ok {
		return ErrTherapistNotFound
	}
	hours, err := json.Marshal(t.WorkingHours)
	if err != nil {
		return err
	}
	q := `INSERT INTO therapists (id, organization_id, name, email, is_active, working_hours)
	      VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	      RETURNING created_at, updated_at`
	return s.DB.QueryRow(ctx, q, ids[0], ids[1], t.Name, t.Email, t.IsActive, hours).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (s *PostgresStore) UpdateWorkingHours(ctx context.Context, orgID, id string, wh WorkingHours) (int64, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return 0, nil
	}
	hours, err := json.Marshal(wh)
	if err != nil {
		return 0, err
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE therapists SET working_hours=$3, updated_at=now() WHERE organization_id=$1 AND id=$2`,
		ids[0], ids[1], hours)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PostgresStore) DeactivateTherapist(ctx context.Context, orgID, id string) (int64, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return 0, nil
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE therapists SET is_active=false, updated_at=now() WHERE organization_id=$1 AND id=$2 AND is_active`,
		ids[0], ids[1])
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PostgresStore) SaveCalendarToken(ctx context.Context, orgID, therapistID string, token []byte) (int64, error) {
	ids, ok := parseIDs(orgID, therapistID)
	if !ok {
		return 0, nil
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE therapists SET google_token=$3, updated_at=now() WHERE organization_id=$1 AND id=$2`,
		ids[0], ids[1], token)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

const appointmentColumns = `a.id::text, a.organization_id::text, COALESCE(a.appointment_request_id::text, ''),
	a.therapist_id::text, t.name, a.client_name, a.client_phone, COALESCE(a.client_email, ''),
	a.appointment_type, to_char(a.appointment_date, 'YYYY-MM-DD'),
	to_char(a.start_time, 'HH24:MI'), to_char(a.end_time, 'HH24:MI'),
	a.duration_minutes, a.status, COALESCE(a.notes, ''), a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.OrganizationID, &a.AppointmentRequestID,
		&a.TherapistID, &a.TherapistName, &a.ClientName, &a.ClientPhone, &a.ClientEmail,
		&a.AppointmentType, &a.AppointmentDate, &a.StartTime, &a.EndTime,
		&a.DurationMinutes, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	ids, ok := parseIDs(f.OrganizationID)
	if !ok {
		return nil, nil
	}
	from, err := ParseDate(f.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(f.To)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + appointmentColumns + `
	      FROM appointments a JOIN therapists t ON t.id = a.therapist_id
	      WHERE a.organization_id=$1 AND a.appointment_date BETWEEN $2 AND $3
	        AND ($4 OR a.status <> 'cancelled')`
	args := []any{ids[0], from, to, f.IncludeCancelled}
	if f.TherapistID != "" {
		tid, ok := parseIDs(f.TherapistID)
		if !ok {
			return nil, nil
		}
		q += ` AND a.therapist_id=$5`
		args = append(args, tid[0])
	}
	q += ` ORDER BY a.appointment_date, a.start_time, t.name`

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAppointment(ctx context.Context, orgID, id string) (*Appointment, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return nil, ErrNotFound
	}
	q := `SELECT ` + appointmentColumns + `
	      FROM appointments a JOIN therapists t ON t.id = a.therapist_id
	      WHERE a.organization_id=$1 AND a.id=$2`
	a, err := scanAppointment(s.DB.QueryRow(ctx, q, ids[0], ids[1]))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// CreateAppointment locks the therapist row so concurrent bookings for the
// same therapist serialise, then rejects any overlap before inserting.
func (s *PostgresStore) CreateAppointment(ctx context.Context, a *Appointment) error {
	ids, ok := parseIDs(a.ID, a.OrganizationID, a.TherapistID)
	if !ok {
		return ErrTherapistNotFound
	}
	day, err := ParseDate(a.AppointmentDate)
	if err != nil {
		return err
	}
	start, err := clockParam(a.StartTime)
	if err != nil {
		return err
	}
	end, err := clockParam(a.EndTime)
	if err != nil {
		return err
	}
	var requestID *uuid.UUID
	if a.AppointmentRequestID != "" {
		if rid, ok := parseIDs(a.AppointmentRequestID); ok {
			requestID = &rid[0]
		}
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var therapistName string
	err = tx.QueryRow(ctx,
		`SELECT name FROM therapists WHERE id=$1 AND organization_id=$2 AND is_active FOR UPDATE`,
		ids[2], ids[1]).Scan(&therapistName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTherapistNotFound
	}
	if err != nil {
		return err
	}

	var overlapping int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM appointments
		 WHERE therapist_id=$1 AND appointment_date=$2 AND status <> 'cancelled'
		   AND start_time < $4 AND end_time > $3`,
		ids[2], day, start, end).Scan(&overlapping)
	if err != nil {
		return err
	}
	if overlapping > 0 {
		return ErrSlotTaken
	}

	q := `INSERT INTO appointments
	      (id, organization_id, appointment_request_id, therapist_id, client_name, client_phone, client_email,
	       appointment_type, appointment_date, start_time, end_time, duration_minutes, status, notes)
	      VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11,$12,$13,NULLIF($14,''))
	      RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, q,
		ids[0], ids[1], requestID, ids[2], a.ClientName, a.ClientPhone, a.ClientEmail,
		a.AppointmentType, day, start, end, a.DurationMinutes, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	a.TherapistName = therapistName
	return nil
}

func (s *PostgresStore) UpdateAppointmentStatus(ctx context.Context, orgID, id string, from []AppointmentStatus, to AppointmentStatus) (int64, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return 0, nil
	}
	fromStrings := make([]string, len(from))
	for i, f := range from {
		fromStrings[i] = string(f)
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE appointments SET status=$3, updated_at=now()
		 WHERE organization_id=$1 AND id=$2 AND status = ANY($4)`,
		ids[0], ids[1], string(to), fromStrings)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PostgresStore) ListOpenRequestsForDate(ctx context.Context, orgID, date string) ([]AppointmentRequest, error) {
	ids, ok := parseIDs(orgID)
	if !ok {
		return nil, nil
	}
	q := `SELECT ar.id::text, ar.call_session_id::text, ar.client_info, ar.appointment_details,
	             ar.intake_info, ar.status, COALESCE(ar.appointment_id::text, ''), ar.created_at
	      FROM appointment_requests ar
	      JOIN call_sessions cs ON cs.id = ar.call_session_id
	      WHERE cs.organization_id=$1
	        AND ar.appointment_details->'preferredDates' @> jsonb_build_array($2::text)
	        AND lower(ar.status) <> ALL($3)
	      ORDER BY ar.created_at, ar.id`
	rows, err := s.DB.Query(ctx, q, ids[0], date, statusStrings([]RequestStatus{RequestCancelled}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppointmentRequest
	for rows.Next() {
		var (
			r                     AppointmentRequest
			client, details, intk []byte
		)
		if err := rows.Scan(&r.ID, &r.CallSessionID, &client, &details, &intk,
			&r.RawStatus, &r.AppointmentID, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(client, &r.Client); err != nil {
			log.Warn().Err(err).Str("appointment_request_id", r.ID).Msg("malformed client_info")
		}
		if err := json.Unmarshal(details, &r.Details); err != nil {
			log.Warn().Err(err).Str("appointment_request_id", r.ID).Msg("skipping request with malformed appointment_details")
			continue
		}
		r.IntakeInfo = intk
		var known bool
		r.Status, known = NormalizeRequestStatus(r.RawStatus)
		if !known {
			log.Warn().Str("appointment_request_id", r.ID).Str("status", r.RawStatus).Msg("unknown request status treated as pending")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, orgID, id string, status RequestStatus, appointmentID string, except []RequestStatus) (int64, error) {
	ids, ok := parseIDs(orgID, id)
	if !ok {
		return 0, nil
	}
	var apptID *uuid.UUID
	if appointmentID != "" {
		if aid, ok := parseIDs(appointmentID); ok {
			apptID = &aid[0]
		}
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE appointment_requests ar
		 SET status=$3, appointment_id=COALESCE($4, ar.appointment_id), updated_at=now()
		 FROM call_sessions cs
		 WHERE cs.id = ar.call_session_id AND cs.organization_id=$1 AND ar.id=$2
		   AND lower(ar.status) <> ALL($5)`,
		ids[0], ids[1], string(status), apptID, statusStrings(except))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PostgresStore) UpdateCallSessionRequestStatus(ctx context.Context, orgID, callSessionID string, status RequestStatus, except []RequestStatus) (int64, error) {
	ids, ok := parseIDs(orgID, callSessionID)
	if !ok {
		return 0, nil
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE appointment_requests ar SET status=$3, updated_at=now()
		 FROM call_sessions cs
		 WHERE cs.id = ar.call_session_id AND cs.organization_id=$1 AND ar.call_session_id=$2
		   AND lower(ar.status) <> ALL($4)`,
		ids[0], ids[1], string(status), statusStrings(except))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *PostgresStore) UpdateRequestStatusByAppointment(ctx context.Context, orgID, appointmentID string, status RequestStatus, except []RequestStatus) (int64, error) {
	ids, ok := parseIDs(orgID, appointmentID)
	if !ok {
		return 0, nil
	}
	res, err := s.DB.Exec(ctx,
		`UPDATE appointment_requests ar SET status=$3, updated_at=now()
		 FROM appointments a
		 WHERE a.organization_id=$1 AND a.id=$2 AND a.status <> 'cancelled'
		   AND (ar.id = a.appointment_request_id OR ar.appointment_id = a.id)
		   AND lower(ar.status) <> ALL($4)`,
		ids[0], ids[1], string(status), statusStrings(except))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
