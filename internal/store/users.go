// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
)

// ErrInvalidCredentials is returned by Authenticate for a bad
// username/password pair. The message is identical for unknown users
// and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid username or password")

// bcryptCost balances login latency against brute-force resistance.
const bcryptCost = 12

// UserStore persists local user accounts with bcrypt password hashes.
// It guarantees two invariants: at least one non-shadow admin always
// remains, and the shadow service account exists and cannot be removed.
type UserStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]models.User // keyed by ID
}

// NewUserStore loads the user store from path, then ensures the shadow
// service account exists.
func NewUserStore(path string) (*UserStore, error) {
	s := &UserStore{
		path:  path,
		users: make(map[string]models.User),
	}

	var list []models.User
	if _, err := loadJSON(path, &list); err != nil {
		return nil, err
	}
	for _, u := range list {
		s.users[u.ID] = u
	}

	if err := s.ensureShadowAccount(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureShadowAccount creates the reportsvc account on first start. Its
// password hash is random and never disclosed, so the account cannot be
// logged into; internal callers authenticate by construction.
func (s *UserStore) ensureShadowAccount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Shadow {
			return nil
		}
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return fmt.Errorf("failed to generate shadow credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(random)), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash shadow credential: %w", err)
	}

	now := time.Now().UTC()
	u := models.User{
		ID:           uuid.New().String(),
		Username:     models.ShadowUsername,
		DisplayName:  "Report Service",
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
		Shadow:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		return err
	}
	logging.Info().Str("username", u.Username).Msg("Shadow service account created")
	return nil
}

// EnsureAdmin bootstraps an admin account from configuration. It is a
// no-op when the username already exists or when any non-shadow admin
// is already present.
func (s *UserStore) EnsureAdmin(username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if err := config.ValidatePassword(password, username); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return nil
		}
		if u.IsAdmin() && !u.Shadow {
			return nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now().UTC()
	u := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		return err
	}
	logging.Info().Str("username", username).Msg("Admin account bootstrapped")
	return nil
}

// Create adds a user. The password is validated against the policy and
// hashed before persisting.
func (s *UserStore) Create(username, displayName, role, password string) (models.User, error) {
	if err := config.ValidatePassword(password, username); err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return models.User{}, fmt.Errorf("user %q: %w", username, ErrDuplicateName)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	u := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		return models.User{}, err
	}
	return u.Sanitized(), nil
}

// Get returns a sanitized user by ID.
func (s *UserStore) Get(id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u.Sanitized(), nil
}

// GetByUsername returns a sanitized user by username (case-insensitive).
func (s *UserStore) GetByUsername(username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u.Sanitized(), nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

// List returns all users sorted by username, hashes stripped.
func (s *UserStore) List() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Sanitized())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Update changes a user's display name, role, and optionally password.
// Empty password keeps the current one. Demoting the last non-shadow
// admin is rejected.
func (s *UserStore) Update(id, displayName, role, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if existing.Shadow {
		return models.User{}, ErrShadowAccount
	}

	if existing.IsAdmin() && role != models.RoleAdmin && s.adminCountLocked() <= 1 {
		return models.User{}, ErrLastAdmin
	}

	updated := existing
	updated.DisplayName = displayName
	updated.Role = role
	updated.UpdatedAt = time.Now().UTC()

	if password != "" {
		if err := config.ValidatePassword(password, existing.Username); err != nil {
			return models.User{}, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return models.User{}, fmt.Errorf("failed to hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}

	s.users[id] = updated
	if err := s.persistLocked(); err != nil {
		s.users[id] = existing
		return models.User{}, err
	}
	return updated.Sanitized(), nil
}

// Delete removes a user. The shadow account and the last non-shadow
// admin are protected.
func (s *UserStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if existing.Shadow {
		return ErrShadowAccount
	}
	if existing.IsAdmin() && s.adminCountLocked() <= 1 {
		return ErrLastAdmin
	}

	delete(s.users, id)
	if err := s.persistLocked(); err != nil {
		s.users[id] = existing
		return err
	}
	return nil
}

// Authenticate verifies a username/password pair and returns the
// sanitized user. The shadow account never authenticates.
func (s *UserStore) Authenticate(username, password string) (models.User, error) {
	s.mu.RLock()
	var found models.User
	ok := false
	for _, u := range s.users {
		if !u.Shadow && strings.EqualFold(u.Username, username) {
			found, ok = u, true
			break
		}
	}
	s.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return models.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return found.Sanitized(), nil
}

// ShadowUser returns the shadow service account, sanitized.
func (s *UserStore) ShadowUser() (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Shadow {
			return u.Sanitized(), nil
		}
	}
	return models.User{}, fmt.Errorf("shadow account: %w", ErrNotFound)
}

var (
	dummyHashOnce  sync.Once
	dummyHashValue []byte
)

// dummyHash returns a hash of a throwaway value, computed once, used to
// equalize Authenticate timing for unknown usernames.
func dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHashValue, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcryptCost)
	})
	return dummyHashValue
}

// adminCountLocked counts non-shadow admins. Callers hold a lock.
func (s *UserStore) adminCountLocked() int {
	n := 0
	for _, u := range s.users {
		if u.IsAdmin() && !u.Shadow {
			n++
		}
	}
	return n
}

// persistLocked writes the store file. Callers hold the write lock.
func (s *UserStore) persistLocked() error {
	list := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return saveJSONAtomic(s.path, list)
}
