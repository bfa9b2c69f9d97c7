// Package memstore provides an in-memory DurableStore. It backs tests and
// single-process setups; nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	authvault "github.com/mkhalaf/authvault"
)

// Store implements authvault.DurableStore with mutex-guarded maps. The
// zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]authvault.Account // keyed by id
	byEmail  map[string]string            // normalized email -> id
	creds    map[string]authvault.Credential
	sessions map[string]authvault.RefreshSession
	codes    map[string]authvault.OneTimeCode
	resets   map[string]authvault.ResetRequest
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]authvault.Account),
		byEmail:  make(map[string]string),
		creds:    make(map[string]authvault.Credential),
		sessions: make(map[string]authvault.RefreshSession),
		codes:    make(map[string]authvault.OneTimeCode),
		resets:   make(map[string]authvault.ResetRequest),
	}
}

func (s *Store) CreateAccount(_ context.Context, acct authvault.Account, cred authvault.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[acct.Email]; taken {
		return authvault.ErrAccountExists
	}
	s.accounts[acct.ID] = acct
	s.byEmail[acct.Email] = acct.ID
	s.creds[acct.ID] = cred
	return nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (*authvault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, authvault.ErrAccountNotFound
	}
	acct := s.accounts[id]
	return &acct, nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*authvault.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, authvault.ErrAccountNotFound
	}
	return &acct, nil
}

func (s *Store) MarkVerified(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return authvault.ErrAccountNotFound
	}
	acct.Verified = true
	s.accounts[accountID] = acct
	return nil
}

// SetAdmin flips the admin flag. Promotion is operator tooling, not an
// engine operation, so only this store exposes it.
func (s *Store) SetAdmin(accountID string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return authvault.ErrAccountNotFound
	}
	acct.Admin = admin
	s.accounts[accountID] = acct
	return nil
}

func (s *Store) CredentialByAccount(_ context.Context, accountID string) (*authvault.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[accountID]
	if !ok {
		return nil, authvault.ErrAccountNotFound
	}
	return &cred, nil
}

func (s *Store) UpdateCredential(_ context.Context, accountID, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[accountID]; !ok {
		return authvault.ErrAccountNotFound
	}
	s.creds[accountID] = authvault.Credential{
		AccountID:    accountID,
		PasswordHash: passwordHash,
		ChangedAt:    changedAt,
	}
	return nil
}

func (s *Store) UpsertRefreshSession(_ context.Context, sess authvault.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.AccountID] = sess
	return nil
}

func (s *Store) RefreshSessionByAccount(_ context.Context, accountID string) (*authvault.RefreshSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[accountID]
	if !ok {
		return nil, authvault.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteRefreshSession(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[accountID]; !ok {
		return authvault.ErrSessionNotFound
	}
	delete(s.sessions, accountID)
	return nil
}

func (s *Store) UpsertOneTimeCode(_ context.Context, code authvault.OneTimeCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.AccountID] = code
	return nil
}

func (s *Store) ConsumeOneTimeCode(_ context.Context, accountID, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[accountID]
	if !ok || stored.Code != code || !now.Before(stored.ExpiresAt) {
		return false, nil
	}
	delete(s.codes, accountID)
	return true, nil
}

func (s *Store) UpsertResetRequest(_ context.Context, req authvault.ResetRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[req.AccountID] = req
	return nil
}

func (s *Store) ActiveResetRequests(_ context.Context, now time.Time) ([]authvault.ResetRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []authvault.ResetRequest
	for _, req := range s.resets {
		if now.Before(req.ExpiresAt) {
			active = append(active, req)
		}
	}
	return active, nil
}

func (s *Store) DeleteResetRequest(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resets, accountID)
	return nil
}
