package projection

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps views in process. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	checkpoint uint64
	locations  map[uuid.UUID]LocationView
	items      map[uuid.UUID]MenuItemView
	devices    map[uuid.UUID]DeviceView
	byKey      map[string]uuid.UUID
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.checkpoint = 0
	s.locations = map[uuid.UUID]LocationView{}
	s.items = map[uuid.UUID]MenuItemView{}
	s.devices = map[uuid.UUID]DeviceView{}
	s.byKey = map[string]uuid.UUID{}
}

func (s *MemoryStore) Checkpoint(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint, nil
}

// Locations returns every location ordered by name, then id.
func (s *MemoryStore) Locations(context.Context) ([]LocationView, error) {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.locations))
	s.mu.RUnlock()
	SortLocations(out)
	return out, nil
}

func (s *MemoryStore) Location(_ context.Context, id uuid.UUID) (LocationView, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.locations[id]
	return v, ok, nil
}

func (s *MemoryStore) MenuItem(_ context.Context, id uuid.UUID) (MenuItemView, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok, nil
}

func (s *MemoryStore) Device(_ context.Context, id uuid.UUID) (DeviceView, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.devices[id]
	return v, ok, nil
}

func (s *MemoryStore) DeviceByKeyHash(_ context.Context, hash string) (DeviceView, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[hash]
	if !ok {
		return DeviceView{}, false, nil
	}
	v, ok := s.devices[id]
	return v, ok, nil
}

func (s *MemoryStore) Commit(_ context.Context, from uint64, to uint64, changes Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint != from {
		return ErrCheckpointMoved
	}
	maps.Copy(s.locations, changes.Locations)
	maps.Copy(s.items, changes.MenuItems)
	for id, d := range changes.Devices {
		s.devices[id] = d
		if d.APIKeyHash != "" {
			s.byKey[d.APIKeyHash] = id
		}
	}
	s.checkpoint = to
	return nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func SortLocations(ls []LocationView) {
	slices.SortFunc(ls, func(a, b LocationView) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
