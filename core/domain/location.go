package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/shared/workflow"
)

type Location struct {
	ID       uuid.UUID
	Name     string
	TimeZone string
	Active   bool
	Version  int
}

// NewLocation validates a creation request. zone must be an already
// resolved IANA zone.
func NewLocation(id uuid.UUID, name string, zone *time.Location, now time.Time) (LocationCreated, error) {
	if id == uuid.Nil {
		return LocationCreated{}, NewValidationError("location_id", "location id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return LocationCreated{}, NewValidationError("name", "name is required")
	}
	if zone == nil {
		return LocationCreated{}, &ValidationError{Field: "time_zone", Message: "time zone is required", Err: ErrInvalidTimeZone}
	}
	return LocationCreated{
		Header:     NewHeader(now),
		LocationID: id,
		Name:       name,
		TimeZone:   zone.String(),
	}, nil
}

func (l Location) Exists() bool { return l.Version > 0 }

// SetActive returns the event that moves the location to the requested
// state, or false when it is already there.
func (l Location) SetActive(active bool, now time.Time) (LocationEvent, bool) {
	from := workflow.ToggleState(workflow.KindLocation, l.Active)
	to := workflow.ToggleState(workflow.KindLocation, active)
	switch workflow.EventTypeForTransition(workflow.KindLocation, from, to) {
	case TypeLocationActivated:
		return LocationActivated{Header: NewHeader(now), LocationID: l.ID}, true
	case TypeLocationDeactivated:
		return LocationDeactivated{Header: NewHeader(now), LocationID: l.ID}, true
	}
	return nil, false
}

// Apply folds one event of the location's own stream.
func (l *Location) Apply(e LocationEvent) {
	e.AcceptLocation(locationFold{l})
	l.Version++
}

type locationFold struct{ l *Location }

func (f locationFold) OnLocationCreated(e LocationCreated) {
	f.l.ID = e.LocationID
	f.l.Name = e.Name
	f.l.TimeZone = e.TimeZone
	f.l.Active = true
}

func (f locationFold) OnLocationActivated(LocationActivated) { f.l.Active = true }

func (f locationFold) OnLocationDeactivated(LocationDeactivated) { f.l.Active = false }
