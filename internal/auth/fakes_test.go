package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeCache records TTL writes and supports error injection.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]time.Duration)}
}

func (c *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.entries[key]
	return ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, _ string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.entries[key] = ttl
	return nil
}

func (c *fakeCache) ttlOf(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl, ok := c.entries[key]
	return ttl, ok
}

// fakeHasher hashes with a visible prefix so tests stay fast.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	return "hashed:" + password, nil
}

func (fakeHasher) Verify(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

type fakeUserStore struct {
	mu          sync.Mutex
	seq         int
	users       map[string]*User
	assignments map[string][]string
	createErr   error
	setPassErr  error
	// findMisses makes the next N FindActiveByEmail calls miss, simulating
	// the read-before-create window of a concurrent registration.
	findMisses int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*User), assignments: make(map[string][]string)}
}

func (s *fakeUserStore) Create(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return nil, err
	}
	for _, u := range s.users {
		if u.Email == email {
			return nil, fmt.Errorf("%w: users_email_key", ErrConflict)
		}
	}
	s.seq++
	u := &User{
		ID:        fmt.Sprintf("user-%d", s.seq),
		Email:     email,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	u.PasswordHash = passwordHash
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *fakeUserStore) FindActiveByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findMisses > 0 {
		s.findMisses--
		return nil, ErrNotFound
	}
	for _, u := range s.users {
		if u.Email == email && u.Active {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeUserStore) Exists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) SetPasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setPassErr != nil {
		return s.setPassErr
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *fakeUserStore) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.assignments[userID] {
		if id == roleID {
			return nil
		}
	}
	s.assignments[userID] = append(s.assignments[userID], roleID)
	return nil
}

func (s *fakeUserStore) RevokeRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.assignments[userID]
	for i, id := range ids {
		if id == roleID {
			s.assignments[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeUserStore) HasRole(_ context.Context, userID, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.assignments[userID] {
		if id == roleName {
			return true, nil
		}
	}
	return false, nil
}

func cloneUser(u *User) *User {
	copied := *u
	copied.Roles = append([]Role(nil), u.Roles...)
	return &copied
}

type fakeRoleStore struct {
	mu    sync.Mutex
	seq   int
	roles map[string]*Role
}

func newFakeRoleStore(names ...string) *fakeRoleStore {
	s := &fakeRoleStore{roles: make(map[string]*Role)}
	for _, name := range names {
		_, _ = s.Create(context.Background(), name, "")
	}
	return s
}

func (s *fakeRoleStore) Create(_ context.Context, name, description string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return nil, fmt.Errorf("%w: roles_name_key", ErrConflict)
		}
	}
	s.seq++
	r := &Role{ID: fmt.Sprintf("role-%d", s.seq), Name: name, Description: description}
	s.roles[r.ID] = r
	return r, nil
}

func (s *fakeRoleStore) Find(_ context.Context, id string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *fakeRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeRoleStore) List(_ context.Context) ([]*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Role
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeRoleStore) Update(_ context.Context, id string, upd RoleUpdate) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	return r, nil
}

func (s *fakeRoleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

type fakeSocialStore struct {
	mu        sync.Mutex
	seq       int
	accounts  map[string]*SocialAccount
	createErr error
	// findMisses makes the next N FindByEmail calls miss, opening the
	// window where two callers race to insert the same link.
	findMisses int
}

func newFakeSocialStore() *fakeSocialStore {
	return &fakeSocialStore{accounts: make(map[string]*SocialAccount)}
}

func socialKey(email, slug string) string { return email + "|" + slug }

func (s *fakeSocialStore) Create(_ context.Context, userID string, info SocialUserInfo) (*SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return nil, err
	}
	key := socialKey(info.Email, info.ProviderSlug)
	if _, ok := s.accounts[key]; ok {
		return nil, fmt.Errorf("%w: social_accounts_email_provider_key", ErrConflict)
	}
	s.seq++
	acc := &SocialAccount{
		ID:           fmt.Sprintf("social-%d", s.seq),
		UserID:       userID,
		SocialID:     info.SocialID,
		ProviderSlug: info.ProviderSlug,
		Email:        info.Email,
		CreatedAt:    time.Now().UTC(),
	}
	s.accounts[key] = acc
	return acc, nil
}

func (s *fakeSocialStore) FindByEmail(_ context.Context, email, providerSlug string) (*SocialAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findMisses > 0 {
		s.findMisses--
		return nil, ErrNotFound
	}
	acc, ok := s.accounts[socialKey(email, providerSlug)]
	if !ok {
		return nil, ErrNotFound
	}
	return acc, nil
}

func (s *fakeSocialStore) Delete(_ context.Context, userID, providerSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, acc := range s.accounts {
		if acc.UserID == userID && acc.ProviderSlug == providerSlug {
			delete(s.accounts, key)
			return nil
		}
	}
	return ErrNotFound
}

type fakeLoginLog struct {
	mu       sync.Mutex
	records  []*LoginRecord
	recorded chan struct{}
}

func newFakeLoginLog() *fakeLoginLog {
	return &fakeLoginLog{recorded: make(chan struct{}, 8)}
}

func (s *fakeLoginLog) Record(_ context.Context, rec *LoginRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	s.recorded <- struct{}{}
	return nil
}

func (s *fakeLoginLog) ListByUser(_ context.Context, userID string, limit int) ([]*LoginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*LoginRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
