package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/accounts"
)

// UserStore keeps users in maps guarded by a RWMutex. Email and username
// indexes enforce the same uniqueness the Mongo store does.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*accounts.User
	byEmail    map[string]string
	byUsername map[string]string
	now        func() time.Time
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:       map[string]*accounts.User{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
		now:        time.Now,
	}
}

// FindByID returns a copy of the stored user, or accounts.ErrUserNotFound.
// Callers may modify the result freely.
func (s *UserStore) FindByID(_ context.Context, id string) (*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(s.byEmail[accounts.NormalizeIdentifier(email)])
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(s.byUsername[accounts.NormalizeIdentifier(username)])
}

// Create stores a copy of u with case-folded identifiers.
func (s *UserStore) Create(_ context.Context, u *accounts.User) error {
	email := accounts.NormalizeIdentifier(u.Email)
	username := accounts.NormalizeIdentifier(u.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return accounts.ErrDuplicateEmail
	}
	if _, ok := s.byUsername[username]; ok {
		return accounts.ErrDuplicateUsername
	}

	stored := cloneUser(u)
	stored.Email = email
	stored.Username = username
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	s.byUsername[username] = stored.ID
	return nil
}

// UpdateStatus sets the status in place. It returns accounts.ErrUserNotFound
// for an unknown ID.
func (s *UserStore) UpdateStatus(_ context.Context, id string, status accounts.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return accounts.ErrUserNotFound
	}
	u.Status = status
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *UserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return accounts.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now().UTC()
	return nil
}

// Delete removes a user. The engine never deletes users; this exists for
// operators and tests.
func (s *UserStore) Delete(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	delete(s.byUsername, u.Username)
	return true
}

// Len reports the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *UserStore) load(id string) (*accounts.User, error) {
	u, ok := s.byID[id]
	if !ok || id == "" {
		return nil, accounts.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func cloneUser(u *accounts.User) *accounts.User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	return &out
}
