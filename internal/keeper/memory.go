package keeper

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
// All state is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*Account
	credentials map[string]*Credential
	nextSeq     uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*Account),
		credentials: make(map[string]*Credential),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds for the memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// GetCredential returns the credential for an account.
func (s *MemoryStore) GetCredential(ctx context.Context, accountID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[accountID]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	cp := *cred
	cp.Scopes = sortedScopes(cred.Scopes)

	return &cp, nil
}

// PutCredential fully replaces the credential for an account.
func (s *MemoryStore) PutCredential(ctx context.Context, accountID string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cred
	cp.Scopes = sortedScopes(cred.Scopes)
	s.credentials[accountID] = &cp

	return nil
}

// DeleteCredential removes the credential for an account. Idempotent.
func (s *MemoryStore) DeleteCredential(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, accountID)

	return nil
}

// RegisterAccount creates the account if absent, otherwise returns the
// existing record unchanged.
func (s *MemoryStore) RegisterAccount(ctx context.Context, id, category, description string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[id]; ok {
		cp := *existing

		return &cp, nil
	}

	s.nextSeq++
	account := &Account{
		ID:          id,
		Category:    category,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Seq:         s.nextSeq,
	}
	s.accounts[id] = account

	cp := *account

	return &cp, nil
}

// GetAccount returns a registered account.
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}

	cp := *account

	return &cp, nil
}

// Accounts returns all registered accounts in insertion order.
func (s *MemoryStore) Accounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Seq < accounts[j].Seq
	})

	return accounts, nil
}

// RemoveAccount deletes an account record. Idempotent.
func (s *MemoryStore) RemoveAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, id)

	return nil
}
