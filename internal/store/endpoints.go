// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
)

// EndpointStore persists OPC UA endpoint configurations. Passwords are
// encrypted at rest; the read API returns masked credentials, and only
// GetWithCredentials exposes the plaintext for the historian client.
type EndpointStore struct {
	mu        sync.RWMutex
	path      string
	encryptor *config.CredentialEncryptor
	endpoints map[string]models.Endpoint
}

// NewEndpointStore loads the endpoint store from path, creating an
// empty store when the file does not exist yet.
func NewEndpointStore(path string, encryptor *config.CredentialEncryptor) (*EndpointStore, error) {
	s := &EndpointStore{
		path:      path,
		encryptor: encryptor,
		endpoints: make(map[string]models.Endpoint),
	}

	var list []models.Endpoint
	found, err := loadJSON(path, &list)
	if err != nil {
		return nil, err
	}
	for _, ep := range list {
		s.endpoints[ep.ID] = ep
	}
	if found {
		logging.Info().Int("endpoints", len(list)).Str("path", path).Msg("Endpoint store loaded")
	}
	return s, nil
}

// Create stores a new endpoint. The plaintext password, if any, is
// encrypted before persisting. Returns the masked view.
func (s *EndpointStore) Create(ep models.Endpoint) (models.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.endpoints {
		if strings.EqualFold(existing.Name, ep.Name) {
			return models.Endpoint{}, fmt.Errorf("endpoint %q: %w", ep.Name, ErrDuplicateName)
		}
	}

	now := time.Now().UTC()
	ep.ID = uuid.New().String()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	if ep.AuthMode == "" {
		ep.AuthMode = models.EndpointAuthAnonymous
	}

	if ep.Password != "" {
		encrypted, err := s.encryptor.Encrypt(ep.Password)
		if err != nil {
			return models.Endpoint{}, fmt.Errorf("failed to encrypt endpoint credential: %w", err)
		}
		ep.Password = encrypted
	}

	s.endpoints[ep.ID] = ep
	if err := s.persistLocked(); err != nil {
		delete(s.endpoints, ep.ID)
		return models.Endpoint{}, err
	}
	return s.maskedLocked(ep)
}

// Get returns the endpoint with credentials masked.
func (s *EndpointStore) Get(id string) (models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return models.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return s.maskedLocked(ep)
}

// GetWithCredentials returns the endpoint with the password decrypted.
// Only the historian client and connection tester may call this; the
// result must never reach an API response or a log line.
func (s *EndpointStore) GetWithCredentials(id string) (models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return models.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	if ep.Password != "" {
		plaintext, err := s.encryptor.Decrypt(ep.Password)
		if err != nil {
			return models.Endpoint{}, fmt.Errorf("failed to decrypt endpoint credential: %w", err)
		}
		ep.Password = plaintext
	}
	return ep, nil
}

// List returns all endpoints sorted by name, credentials masked.
func (s *EndpointStore) List() ([]models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		masked, err := s.maskedLocked(ep)
		if err != nil {
			return nil, err
		}
		out = append(out, masked)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListEnabled returns enabled endpoints with decrypted credentials for
// the collector.
func (s *EndpointStore) ListEnabled() ([]models.Endpoint, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.endpoints))
	for id, ep := range s.endpoints {
		if ep.Enabled {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	out := make([]models.Endpoint, 0, len(ids))
	for _, id := range ids {
		ep, err := s.GetWithCredentials(id)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update replaces the mutable fields of an endpoint. An empty password
// keeps the stored credential; a non-empty one replaces it.
func (s *EndpointStore) Update(id string, ep models.Endpoint) (models.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.endpoints[id]
	if !ok {
		return models.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}

	for otherID, other := range s.endpoints {
		if otherID != id && strings.EqualFold(other.Name, ep.Name) {
			return models.Endpoint{}, fmt.Errorf("endpoint %q: %w", ep.Name, ErrDuplicateName)
		}
	}

	ep.ID = existing.ID
	ep.CreatedAt = existing.CreatedAt
	ep.UpdatedAt = time.Now().UTC()
	if ep.AuthMode == "" {
		ep.AuthMode = models.EndpointAuthAnonymous
	}

	switch {
	case ep.Password == "":
		ep.Password = existing.Password
	default:
		encrypted, err := s.encryptor.Encrypt(ep.Password)
		if err != nil {
			return models.Endpoint{}, fmt.Errorf("failed to encrypt endpoint credential: %w", err)
		}
		ep.Password = encrypted
	}

	s.endpoints[id] = ep
	if err := s.persistLocked(); err != nil {
		s.endpoints[id] = existing
		return models.Endpoint{}, err
	}
	return s.maskedLocked(ep)
}

// Delete removes an endpoint.
func (s *EndpointStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.endpoints[id]
	if !ok {
		return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	delete(s.endpoints, id)
	if err := s.persistLocked(); err != nil {
		s.endpoints[id] = existing
		return err
	}
	return nil
}

// maskedLocked returns a copy with the password reduced to its masked
// display form. Callers hold at least the read lock.
func (s *EndpointStore) maskedLocked(ep models.Endpoint) (models.Endpoint, error) {
	if ep.Password == "" {
		return ep, nil
	}
	plaintext, err := s.encryptor.Decrypt(ep.Password)
	if err != nil {
		return models.Endpoint{}, fmt.Errorf("failed to decrypt endpoint credential: %w", err)
	}
	ep.Password = config.MaskCredential(plaintext)
	return ep, nil
}

// persistLocked writes the store file. Callers hold the write lock.
func (s *EndpointStore) persistLocked() error {
	list := make([]models.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		list = append(list, ep)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return saveJSONAtomic(s.path, list)
}
