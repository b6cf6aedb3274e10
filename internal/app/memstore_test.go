package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same tenancy, overlap and
// referential rules as PostgresStore.
type memStore struct {
	mu           sync.Mutex
	therapists   map[string]*Therapist
	appointments []*Appointment
	requests     []*memRequest

	// injected failures
	listAppointmentsErr error
	createErr           error
	requestUpdateErr    error

	createCalls int
}

type memRequest struct {
	orgID string
	req   AppointmentRequest
}

func newMemStore() *memStore {
	return &memStore{therapists: make(map[string]*Therapist)}
}

func (m *memStore) addTherapist(orgID, name string, wh WorkingHours) Therapist {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Therapist{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		IsActive:       true,
		WorkingHours:   wh,
	}
	m.therapists[t.ID] = t
	return *t
}

func (m *memStore) addAppointment(orgID string, t Therapist, date, start, end string, status AppointmentStatus) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _ := TimeToMinutes(start)
	e, _ := TimeToMinutes(end)
	a := &Appointment{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		TherapistID:     t.ID,
		ClientName:      "Existing Client",
		ClientPhone:     "555-0100",
		AppointmentType: "consultation",
		AppointmentDate: date,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: e - s,
		Status:          status,
	}
	m.appointments = append(m.appointments, a)
	return *a
}

func (m *memStore) addRequest(orgID, callSessionID, rawStatus string, details AppointmentDetails) AppointmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, _ := NormalizeRequestStatus(rawStatus)
	r := AppointmentRequest{
		ID:            uuid.NewString(),
		CallSessionID: callSessionID,
		Client:        ClientInfo{Name: "Caller", Phone: "555-0199"},
		Details:       details,
		Status:        status,
		RawStatus:     rawStatus,
		CreatedAt:     time.Now(),
	}
	m.requests = append(m.requests, &memRequest{orgID: orgID, req: r})
	return r
}

func (m *memStore) request(id string) AppointmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.req.ID == id {
			return r.req
		}
	}
	return AppointmentRequest{}
}

func (m *memStore) appointment(id string) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.ID == id {
			return *a
		}
	}
	return Appointment{}
}

func (m *memStore) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *memStore) ListTherapists(_ context.Context, orgID string) ([]Therapist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Therapist
	for _, t := range m.therapists {
		if t.OrganizationID == orgID && t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetTherapist(_ context.Context, orgID, id string) (*Therapist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.therapists[id]
	if !ok || t.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *t
	cp.CalendarLinked = len(cp.calendarToken) > 0
	return &cp, nil
}

func (m *memStore) CreateTherapist(_ context.Context, t *Therapist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.therapists[t.ID] = &cp
	return nil
}

func (m *memStore) UpdateWorkingHours(_ context.Context, orgID, id string, wh WorkingHours) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.therapists[id]
	if !ok || t.OrganizationID != orgID {
		return 0, nil
	}
	t.WorkingHours = wh
	return 1, nil
}

func (m *memStore) DeactivateTherapist(_ context.Context, orgID, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.therapists[id]
	if !ok || t.OrganizationID != orgID || !t.IsActive {
		return 0, nil
	}
	t.IsActive = false
	return 1, nil
}

func (m *memStore) SaveCalendarToken(_ context.Context, orgID, therapistID string, token []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.therapists[therapistID]
	if !ok || t.OrganizationID != orgID {
		return 0, nil
	}
	t.calendarToken = token
	return 1, nil
}

func (m *memStore) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listAppointmentsErr != nil {
		return nil, m.listAppointmentsErr
	}
	var out []Appointment
	for _, a := range m.appointments {
		if a.OrganizationID != f.OrganizationID {
			continue
		}
		if f.TherapistID != "" && a.TherapistID != f.TherapistID {
			continue
		}
		if a.AppointmentDate < f.From || a.AppointmentDate > f.To {
			continue
		}
		if a.Status == AppointmentCancelled && !f.IncludeCancelled {
			continue
		}
		cp := *a
		if t, ok := m.therapists[a.TherapistID]; ok {
			cp.TherapistName = t.Name
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AppointmentDate != out[j].AppointmentDate {
			return out[i].AppointmentDate < out[j].AppointmentDate
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *memStore) GetAppointment(_ context.Context, orgID, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.ID == id && a.OrganizationID == orgID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	t, ok := m.therapists[a.TherapistID]
	if !ok || t.OrganizationID != a.OrganizationID || !t.IsActive {
		return ErrTherapistNotFound
	}
	candidate, err := appointmentInterval(*a)
	if err != nil {
		return err
	}
	for _, existing := range m.appointments {
		if existing.TherapistID != a.TherapistID || existing.AppointmentDate != a.AppointmentDate ||
			existing.Status == AppointmentCancelled {
			continue
		}
		iv, err := appointmentInterval(*existing)
		if err != nil {
			continue
		}
		if candidate.Overlaps(iv) {
			return ErrSlotTaken
		}
	}
	a.TherapistName = t.Name
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appointments = append(m.appointments, &cp)
	return nil
}

func (m *memStore) UpdateAppointmentStatus(_ context.Context, orgID, id string, from []AppointmentStatus, to AppointmentStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.ID != id || a.OrganizationID != orgID {
			continue
		}
		for _, f := range from {
			if a.Status == f {
				a.Status = to
				return 1, nil
			}
		}
	}
	return 0, nil
}

func (m *memStore) ListOpenRequestsForDate(_ context.Context, orgID, date string) ([]AppointmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentRequest
	for _, r := range m.requests {
		if r.orgID != orgID || r.req.Status == RequestCancelled {
			continue
		}
		if containsString(r.req.Details.PreferredDates, date) {
			out = append(out, r.req)
		}
	}
	return out, nil
}

func (m *memStore) UpdateRequestStatus(_ context.Context, orgID, id string, status RequestStatus, appointmentID string, except []RequestStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requestUpdateErr != nil {
		return 0, m.requestUpdateErr
	}
	for _, r := range m.requests {
		if r.req.ID == id && r.orgID == orgID && !containsStatus(except, r.req.Status) {
			r.req.Status = status
			r.req.RawStatus = string(status)
			if appointmentID != "" {
				r.req.AppointmentID = appointmentID
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) UpdateCallSessionRequestStatus(_ context.Context, orgID, callSessionID string, status RequestStatus, except []RequestStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.requests {
		if r.req.CallSessionID == callSessionID && r.orgID == orgID && !containsStatus(except, r.req.Status) {
			r.req.Status = status
			r.req.RawStatus = string(status)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpdateRequestStatusByAppointment(_ context.Context, orgID, appointmentID string, status RequestStatus, except []RequestStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var appt *Appointment
	for _, a := range m.appointments {
		if a.ID == appointmentID && a.OrganizationID == orgID && a.Status != AppointmentCancelled {
			appt = a
		}
	}
	if appt == nil {
		return 0, nil
	}
	var n int64
	for _, r := range m.requests {
		if r.orgID == orgID && (r.req.ID == appt.AppointmentRequestID || r.req.AppointmentID == appt.ID) &&
			!containsStatus(except, r.req.Status) {
			r.req.Status = status
			r.req.RawStatus = string(status)
			n++
		}
	}
	return n, nil
}

var _ Store = (*memStore)(nil)
