package keeper

import (
	"context"
	"errors"
)

// Sentinel errors for absent records. Absence is a normal outcome and is
// kept distinct from KindStoreUnavailable, which signals an I/O failure.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrAccountNotFound    = errors.New("account not found")
)

// CredentialStore is the durable mapping from account ID to credential.
// Pure data access; no expiry or scope policy lives here. Implementations
// must guarantee that readers never observe a partially written
// credential.
type CredentialStore interface {
	// GetCredential returns the credential for an account, or
	// ErrCredentialNotFound.
	GetCredential(ctx context.Context, accountID string) (*Credential, error)

	// PutCredential fully replaces the credential for an account.
	PutCredential(ctx context.Context, accountID string, cred *Credential) error

	// DeleteCredential removes the credential for an account. Deleting an
	// absent credential is not an error.
	DeleteCredential(ctx context.Context, accountID string) error
}

// AccountRegistry tracks known accounts independent of token state.
type AccountRegistry interface {
	// RegisterAccount creates the account if absent and returns it.
	// Repeat calls return the existing record unchanged: the first
	// registration wins for category and description, so routine
	// re-registration never discards user-curated metadata. Concurrent
	// registration of the same new ID must produce exactly one record.
	RegisterAccount(ctx context.Context, id, category, description string) (*Account, error)

	// GetAccount returns a registered account, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// Accounts returns all registered accounts in insertion order.
	Accounts(ctx context.Context) ([]Account, error)

	// RemoveAccount deletes an account record. Idempotent.
	RemoveAccount(ctx context.Context, id string) error
}

// Store combines credential storage and the account registry. Both live
// in the same database so revocation can remove account and credential
// together.
type Store interface {
	CredentialStore
	AccountRegistry

	// Ping verifies the store is reachable. Used by readiness checks.
	Ping(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}
