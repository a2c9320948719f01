// Package memory provides the in-memory directory store.
package memory

import (
	"context"
	"sort"
	"sync"

	"bxhive/internal/directory/models"
	id "bxhive/pkg/domain"
	"bxhive/pkg/platform/sentinel"
)

// Store keeps users, admins, and templates in maps guarded by one mutex.
type Store struct {
	mu        sync.Mutex
	byAddress map[id.Address]*models.User
	byID      map[id.UserID]*models.User
	admins    map[id.Address]*models.Admin
	templates map[id.TemplateID]*models.Template
	userCount uint32
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byAddress: make(map[id.Address]*models.User),
		byID:      make(map[id.UserID]*models.User),
		admins:    make(map[id.Address]*models.Admin),
		templates: make(map[id.TemplateID]*models.Template),
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAddress[user.Address]; ok {
		return sentinel.ErrAlreadyUsed
	}
	user.ID = id.UserID(s.userCount)
	s.userCount++
	copied := *user
	s.byAddress[user.Address] = &copied
	s.byID[user.ID] = &copied
	return nil
}

func (s *Store) GetUserByAddress(_ context.Context, addr id.Address) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byAddress[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) GetUserByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.User, 0, len(s.byID))
	for _, user := range s.byID {
		copied := *user
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutAdmin(_ context.Context, admin *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *admin
	s.admins[admin.Address] = &copied
	return nil
}

func (s *Store) GetAdmin(_ context.Context, addr id.Address) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *admin
	return &copied, nil
}

func (s *Store) RemoveAdmin(_ context.Context, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[addr]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.admins, addr)
	return nil
}

func (s *Store) PutTemplate(_ context.Context, tmpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tmpl
	s.templates[tmpl.ID] = &copied
	return nil
}

func (s *Store) GetTemplate(_ context.Context, templateID id.TemplateID) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *tmpl
	return &copied, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Template, 0, len(s.templates))
	for _, tmpl := range s.templates {
		copied := *tmpl
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
