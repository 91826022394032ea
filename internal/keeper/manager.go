package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ExpirySkew is subtracted from a token's remaining lifetime when judging
// freshness. A token expiring within the skew is treated as already
// expired so callers never receive a credential that dies mid-request.
const ExpirySkew = 60 * time.Second

// Validation reasons surfaced to callers when a credential is unusable.
const (
	ReasonNoCredential      = "no credential"
	ReasonInsufficientScope = "insufficient scope"
	ReasonReauthRequired    = "token expired, reauthorization required"
)

// ValidationResult is the outcome of a credential validation. An invalid
// result is a normal answer, not an error; errors are reserved for
// failures of the validation itself.
type ValidationResult struct {
	Valid      bool               `json:"valid"`
	Reason     string             `json:"reason,omitempty"`
	Credential *CredentialSummary `json:"credential,omitempty"`
}

// IdentityVerifier resolves the identity a credential is bound to, so a
// completed authorization can be checked against the intended account.
type IdentityVerifier func(ctx context.Context, cred *Credential) (string, error)

// Metrics receives lifecycle outcome counts. Implementations must be
// safe for concurrent use.
type Metrics interface {
	RecordValidation(result string)
	RecordRefresh(result string)
	RecordExchange(result string)
	RecordConsentURL()
}

// Manager is the credential lifecycle orchestrator. It owns the ordering
// of registry lookups, scope checks, expiry checks, refreshes, and
// persistence; per-account locking makes concurrent mutations of one
// account's credential safe.
type Manager struct {
	store     Store
	flow      *Flow
	refresher *Refresher
	logger    *slog.Logger
	metrics   Metrics
	verify    IdentityVerifier

	lmu   sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerOption configures optional manager collaborators.
type ManagerOption func(*Manager)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithIdentityVerifier makes CompleteAuthorization confirm that the
// consenting identity matches the account being authorized.
func WithIdentityVerifier(v IdentityVerifier) ManagerOption {
	return func(mgr *Manager) { mgr.verify = v }
}

// NewManager wires the orchestrator.
func NewManager(store Store, flow *Flow, refresher *Refresher, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:     store,
		flow:      flow,
		refresher: refresher,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// accountLock returns the mutex serializing mutations of one account's
// credential.
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}

	return l
}

// Register creates an account if absent and returns it. Registration is
// idempotent: repeat calls return the existing record unchanged.
func (m *Manager) Register(ctx context.Context, id, category, description string) (*Account, error) {
	if id == "" {
		return nil, errors.New("account id must not be empty")
	}

	account, err := m.store.RegisterAccount(ctx, id, category, description)
	if err != nil {
		return nil, err
	}

	m.logger.Info("registered account", "account", id, "category", account.Category)

	return account, nil
}

// Validate answers whether the account holds a credential covering the
// required scopes, refreshing an expired access token when a refresh
// token is available. A fresh credential with sufficient scope answers
// without any network traffic. When the refresh token itself is
// rejected, the dead credential is discarded so the caller is steered
// straight to reauthorization. An account that was never registered, or
// whose registration has been revoked, reports the same no-credential
// result as a registered account that was never authorized.
func (m *Manager) Validate(ctx context.Context, accountID string, requiredScopes []string) (*ValidationResult, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.store.GetCredential(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			m.recordValidation("no_credential")

			return &ValidationResult{Valid: false, Reason: ReasonNoCredential}, nil
		}

		return nil, err
	}

	// Scope sufficiency is decided before expiry: a grant that can never
	// cover the requirement is not worth refreshing.
	if !ScopesSatisfied(cred.Scopes, requiredScopes) {
		m.recordValidation("insufficient_scope")

		return &ValidationResult{
			Valid:      false,
			Reason:     fmt.Sprintf("%s: missing %s", ReasonInsufficientScope, strings.Join(MissingScopes(cred.Scopes, requiredScopes), " ")),
			Credential: cred.Summary(),
		}, nil
	}

	if !cred.Expired(ExpirySkew) {
		m.recordValidation("valid")

		return &ValidationResult{Valid: true, Credential: cred.Summary()}, nil
	}

	if cred.RefreshToken == "" {
		m.recordValidation("reauth_required")

		return &ValidationResult{
			Valid:      false,
			Reason:     ReasonReauthRequired,
			Credential: cred.Summary(),
		}, nil
	}

	fresh, err := m.refresher.Refresh(ctx, accountID, cred)
	if err != nil {
		switch KindOf(err) {
		case KindRefreshRejected:
			// The grant is dead. Drop it so the next validation reports a
			// clean authorization-required state instead of retrying a
			// refresh that can never succeed.
			if delErr := m.store.DeleteCredential(ctx, accountID); delErr != nil {
				m.logger.Error("deleting rejected credential",
					"account", accountID,
					"error", delErr)
			}

			m.recordRefresh("rejected")
			m.recordValidation("reauth_required")

			m.logger.Warn("refresh token rejected, credential discarded", "account", accountID)

			return &ValidationResult{Valid: false, Reason: ReasonReauthRequired}, nil
		case KindTransientRefresh:
			m.recordRefresh("transient_error")
		}

		m.recordValidation("error")

		return nil, err
	}

	m.recordRefresh("success")
	m.recordValidation("valid")

	return &ValidationResult{Valid: true, Credential: fresh.Summary()}, nil
}

// Authorize builds a consent URL requesting the union of the account's
// already-granted scopes and the newly required ones, so completing the
// flow never narrows the grant.
func (m *Manager) Authorize(ctx context.Context, accountID string, scopes []string) (string, error) {
	if _, err := m.store.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", newError(KindNotRegistered, "account %s is not registered", accountID)
		}

		return "", err
	}

	requested := sortedScopes(scopes)

	cred, err := m.store.GetCredential(ctx, accountID)
	switch {
	case err == nil:
		requested = UnionScopes(cred.Scopes, scopes)
	case errors.Is(err, ErrCredentialNotFound):
		// First authorization; nothing to merge.
	default:
		return "", err
	}

	url, err := m.flow.ConsentURL(accountID, requested)
	if err != nil {
		return "", err
	}

	if m.metrics != nil {
		m.metrics.RecordConsentURL()
	}

	m.logger.Info("built consent url", "account", accountID, "scope_count", len(requested))

	return url, nil
}

// CompleteAuthorization exchanges the authorization code and persists the
// resulting credential, fully replacing any previous one. When an
// identity verifier is configured, a grant consented by a different
// identity than the account being authorized is rejected and nothing is
// stored.
func (m *Manager) CompleteAuthorization(ctx context.Context, accountID, code string) (*CredentialSummary, error) {
	if _, err := m.store.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, newError(KindNotRegistered, "account %s is not registered", accountID)
		}

		return nil, err
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.flow.Exchange(ctx, accountID, code)
	if err != nil {
		m.recordExchange("error")

		return nil, err
	}

	if m.verify != nil {
		identity, err := m.verify(ctx, cred)
		if err != nil {
			m.recordExchange("error")

			return nil, wrapError(KindExchangeError, err, "verifying authorized identity for %s", accountID)
		}

		if !strings.EqualFold(identity, accountID) {
			m.recordExchange("identity_mismatch")

			return nil, newError(KindExchangeError,
				"authorization was granted by %s, not %s; redo the consent flow signed in as the right account",
				identity, accountID)
		}
	}

	if err := m.store.PutCredential(ctx, accountID, cred); err != nil {
		m.recordExchange("error")

		return nil, err
	}

	m.recordExchange("success")

	m.logger.Info("completed authorization",
		"account", accountID,
		"scope_count", len(cred.Scopes),
		"expiry", cred.Expiry)

	return cred.Summary(), nil
}

// Revoke removes the account's credential and its registry entry.
// Idempotent; revoking an unknown account is not an error.
func (m *Manager) Revoke(ctx context.Context, accountID string) error {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteCredential(ctx, accountID); err != nil {
		return err
	}

	if err := m.store.RemoveAccount(ctx, accountID); err != nil {
		return err
	}

	m.logger.Info("revoked account", "account", accountID)

	return nil
}

// List returns every registered account in insertion order, each with a
// non-secret summary of its credential when one exists.
func (m *Manager) List(ctx context.Context) ([]AccountInfo, error) {
	accounts, err := m.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		info := AccountInfo{Account: a}

		cred, err := m.store.GetCredential(ctx, a.ID)
		switch {
		case err == nil:
			info.Credential = cred.Summary()
		case errors.Is(err, ErrCredentialNotFound):
			// Registered but never authorized.
		default:
			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// Ping reports whether the backing store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) recordValidation(result string) {
	if m.metrics != nil {
		m.metrics.RecordValidation(result)
	}
}

func (m *Manager) recordRefresh(result string) {
	if m.metrics != nil {
		m.metrics.RecordRefresh(result)
	}
}

func (m *Manager) recordExchange(result string) {
	if m.metrics != nil {
		m.metrics.RecordExchange(result)
	}
}
