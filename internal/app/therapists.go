package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type CreateTherapistRequest struct {
	Name         string        `json:"name"`
	Email        string        `json:"email,omitempty"`
	WorkingHours *WorkingHours `json:"workingHours,omitempty"`
}

func (a *App) ListTherapists(ctx context.Context, orgID string) ([]Therapist, error) {
	ts, err := a.Store.ListTherapists(ctx, orgID)
	if err != nil {
		return nil, classifyStoreError("list therapists", err)
	}
	if ts == nil {
		ts = []Therapist{}
	}
	return ts, nil
}

func (a *App) CreateTherapist(ctx context.Context, orgID string, req CreateTherapistRequest) (*Therapist, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	wh := DefaultWorkingHours()
	if req.WorkingHours != nil {
		wh = *req.WorkingHours
	}
	if err := wh.Validate(); err != nil {
		return nil, validationError("working hours: %v", err)
	}
	t := &Therapist{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Email:          strings.TrimSpace(req.Email),
		IsActive:       true,
		WorkingHours:   wh,
	}
	if err := a.Store.CreateTherapist(ctx, t); err != nil {
		return nil, classifyStoreError("create therapist", err)
	}
	return t, nil
}

func (a *App) UpdateWorkingHours(ctx context.Context, orgID, id string, wh WorkingHours) (*Therapist, error) {
	if err := wh.Validate(); err != nil {
		return nil, validationError("working hours: %v", err)
	}
	if _, err := a.lookupTherapist(ctx, orgID, id); err != nil {
		return nil, err
	}
	if _, err := a.Store.UpdateWorkingHours(ctx, orgID, id, wh); err != nil {
		return nil, classifyStoreError("update working hours", err)
	}
	return a.lookupTherapist(ctx, orgID, id)
}

// DeactivateTherapist soft-deletes; appointments keep referencing the row.
func (a *App) DeactivateTherapist(ctx context.Context, orgID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFoundError("therapist %s not found", id)
	}
	n, err := a.Store.DeactivateTherapist(ctx, orgID, id)
	if err != nil {
		return classifyStoreError("deactivate therapist", err)
	}
	if n == 0 {
		return notFoundError("therapist %s not found", id)
	}
	return nil
}

// lookupActiveTherapist is lookupTherapist for operations that schedule
// against the therapist; deactivated therapists are reported as not found.
func (a *App) lookupActiveTherapist(ctx context.Context, orgID, id string) (*Therapist, error) {
	t, err := a.lookupTherapist(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, notFoundError("therapist %s not found", id)
	}
	return t, nil
}

func (a *App) lookupTherapist(ctx context.Context, orgID, id string) (*Therapist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFoundError("therapist %s not found", id)
	}
	t, err := a.Store.GetTherapist(ctx, orgID, id)
	if err != nil {
		return nil, classifyStoreError("get therapist", err)
	}
	return t, nil
}
