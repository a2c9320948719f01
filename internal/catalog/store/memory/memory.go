// Package memory provides the in-memory catalog store.
package memory

import (
	"context"
	"sort"
	"sync"

	"bxhive/internal/catalog/models"
	id "bxhive/pkg/domain"
	"bxhive/pkg/platform/sentinel"
)

// Store keeps groups and variation records in maps guarded by one mutex, so
// each store call is atomic.
type Store struct {
	mu         sync.Mutex
	groups     map[id.GroupID]*models.ExperimentGroup
	variations map[id.VariationKey]*models.VariationRecord
	groupCount uint32
}

// New creates an empty store.
func New() *Store {
	return &Store{
		groups:     make(map[id.GroupID]*models.ExperimentGroup),
		variations: make(map[id.VariationKey]*models.VariationRecord),
	}
}

func (s *Store) NextGroupID(_ context.Context) (id.GroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id.GroupID(s.groupCount), nil
}

func (s *Store) CreateGroup(_ context.Context, group *models.ExperimentGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createGroupLocked(group)
}

func (s *Store) GetGroup(_ context.Context, groupID id.GroupID) (*models.ExperimentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *group
	return &copied, nil
}

func (s *Store) ListGroups(_ context.Context) ([]*models.ExperimentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ExperimentGroup, 0, len(s.groups))
	for _, group := range s.groups {
		copied := *group
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateVariation(_ context.Context, rec *models.VariationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createVariationLocked(rec)
}

func (s *Store) CreateGroupWithVariation(_ context.Context, group *models.ExperimentGroup, rec *models.VariationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createGroupLocked(group); err != nil {
		return err
	}
	if err := s.createVariationLocked(rec); err != nil {
		// Unwind the group insert so the fused call stays all-or-nothing.
		delete(s.groups, group.ID)
		s.groupCount--
		return err
	}
	return nil
}

func (s *Store) GetVariation(_ context.Context, key id.VariationKey) (*models.VariationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.variations[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) ListVariations(_ context.Context, groupID id.GroupID) ([]*models.VariationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.VariationRecord, 0)
	for key, rec := range s.variations {
		if key.Group == groupID {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Variation < out[j].Key.Variation })
	return out, nil
}

func (s *Store) createGroupLocked(group *models.ExperimentGroup) error {
	if uint32(group.ID) != s.groupCount {
		return sentinel.ErrConflict
	}
	copied := *group
	s.groups[group.ID] = &copied
	s.groupCount++
	return nil
}

func (s *Store) createVariationLocked(rec *models.VariationRecord) error {
	group, ok := s.groups[rec.Key.Group]
	if !ok {
		return sentinel.ErrNotFound
	}
	if uint32(rec.Key.Variation) != group.VariationCount {
		return sentinel.ErrConflict
	}
	copied := *rec
	s.variations[rec.Key] = &copied
	group.VariationCount++
	return nil
}
