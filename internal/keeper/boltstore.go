package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	// Credentials live here, so the directory is owner-only.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	accountsBucket    = []byte("accounts")
	credentialsBucket = []byte("credentials")
)

// BoltStore persists accounts and credentials in a bbolt database. Bolt
// transactions are atomic, which gives readers the no-partial-credential
// guarantee for free.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenBoltStore opens (creating if needed) the state database at path.
// The parent directory is created with owner-only permissions.
func OpenBoltStore(path string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, newError(KindStoreUnavailable, "creating state directory: %v", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, err, "opening state db %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(accountsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(credentialsBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, wrapError(KindStoreUnavailable, err, "initializing state db")
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// DefaultStatePath returns ~/.accountkeeper/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".accountkeeper", "state.db"), nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *BoltStore) Ping(ctx context.Context) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(accountsBucket) == nil {
			return fmt.Errorf("accounts bucket missing")
		}

		return nil
	})
	if err != nil {
		return wrapError(KindStoreUnavailable, err, "pinging state db")
	}

	return nil
}

// GetCredential returns the credential for an account.
func (s *BoltStore) GetCredential(ctx context.Context, accountID string) (*Credential, error) {
	var cred *Credential

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte(accountID))
		if v == nil {
			return nil
		}

		cred = &Credential{}

		return json.Unmarshal(v, cred)
	})
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, err, "reading credential for %s", accountID)
	}

	if cred == nil {
		return nil, ErrCredentialNotFound
	}

	return cred, nil
}

// PutCredential fully replaces the credential for an account.
func (s *BoltStore) PutCredential(ctx context.Context, accountID string, cred *Credential) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cred)
		if err != nil {
			return err
		}

		return tx.Bucket(credentialsBucket).Put([]byte(accountID), data)
	})
	if err != nil {
		return wrapError(KindStoreUnavailable, err, "writing credential for %s", accountID)
	}

	s.logger.Debug("stored credential",
		"account", accountID,
		"expiry", cred.Expiry,
		"scope_count", len(cred.Scopes))

	return nil
}

// DeleteCredential removes the credential for an account. Idempotent.
func (s *BoltStore) DeleteCredential(ctx context.Context, accountID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(accountID))
	})
	if err != nil {
		return wrapError(KindStoreUnavailable, err, "deleting credential for %s", accountID)
	}

	return nil
}

// RegisterAccount creates the account if absent, otherwise returns the
// existing record unchanged. The single update transaction makes
// concurrent registration of the same new ID race-safe.
func (s *BoltStore) RegisterAccount(ctx context.Context, id, category, description string) (*Account, error) {
	var account *Account

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountsBucket)

		if v := b.Get([]byte(id)); v != nil {
			account = &Account{}

			return json.Unmarshal(v, account)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		account = &Account{
			ID:          id,
			Category:    category,
			Description: description,
			CreatedAt:   time.Now().UTC(),
			Seq:         seq,
		}

		data, err := json.Marshal(account)
		if err != nil {
			return err
		}

		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, err, "registering account %s", id)
	}

	return account, nil
}

// GetAccount returns a registered account.
func (s *BoltStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	var account *Account

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(accountsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		account = &Account{}

		return json.Unmarshal(v, account)
	})
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, err, "reading account %s", id)
	}

	if account == nil {
		return nil, ErrAccountNotFound
	}

	return account, nil
}

// Accounts returns all registered accounts in insertion order.
func (s *BoltStore) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(k, v []byte) error {
			var a Account
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}

			accounts = append(accounts, a)

			return nil
		})
	})
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, err, "listing accounts")
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Seq < accounts[j].Seq
	})

	return accounts, nil
}

// RemoveAccount deletes an account record. Idempotent.
func (s *BoltStore) RemoveAccount(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).Delete([]byte(id))
	})
	if err != nil {
		return wrapError(KindStoreUnavailable, err, "removing account %s", id)
	}

	return nil
}
