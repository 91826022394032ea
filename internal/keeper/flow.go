package keeper

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// pendingTTL is how long an unconsumed pending authorization is kept.
	// There is no hard deadline on the user completing consent; the TTL
	// only bounds retained entries.
	pendingTTL = 10 * time.Minute

	// maxPending caps retained pending authorizations. When the cap is
	// reached the oldest entry is evicted.
	maxPending = 100

	// pendingCleanupInterval controls how often expired entries are reaped.
	pendingCleanupInterval = 1 * time.Minute
)

// PendingAuthorization records the scope set behind an issued consent URL
// so a later code exchange can be interpreted against the originally
// requested scopes when the token response omits an explicit scope list.
// Ephemeral: never persisted across restarts.
type PendingAuthorization struct {
	AccountID string
	State     string
	Scopes    []string
	CreatedAt time.Time
}

// Flow builds consent URLs and exchanges authorization codes for
// credentials against the external authorization server.
type Flow struct {
	conf   *oauth2.Config
	logger *slog.Logger

	mu        sync.Mutex
	pending   map[string]*PendingAuthorization // state -> pending
	byAccount map[string]string                // account ID -> state of newest pending
	stopGC    chan struct{}
	ttl       time.Duration
}

// NewFlow creates a flow builder for the given OAuth2 client configuration
// and starts a background goroutine that reaps abandoned pending
// authorizations. A non-positive ttl selects the default retention. Call
// Stop to clean up the goroutine.
func NewFlow(conf *oauth2.Config, ttl time.Duration, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = pendingTTL
	}

	f := &Flow{
		conf:      conf,
		logger:    logger,
		pending:   make(map[string]*PendingAuthorization),
		byAccount: make(map[string]string),
		stopGC:    make(chan struct{}),
		ttl:       ttl,
	}
	go f.gcLoop()

	return f
}

// Stop terminates the background cleanup goroutine.
func (f *Flow) Stop() {
	close(f.stopGC)
}

// ConsentURL builds the authorization server's consent URL for the given
// scopes and records a pending authorization keyed by the state value
// embedded in the URL. Offline access and a forced approval prompt are
// requested so the exchange yields a refresh token. Construction is local
// and non-blocking.
func (f *Flow) ConsentURL(accountID string, scopes []string) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}

	conf := *f.conf
	conf.Scopes = sortedScopes(scopes)

	url := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("login_hint", accountID),
	)

	f.mu.Lock()
	defer f.mu.Unlock()

	// A newer consent URL supersedes any earlier one for the account.
	if prev, ok := f.byAccount[accountID]; ok {
		delete(f.pending, prev)
	}

	f.evictOldestLocked()

	f.pending[state] = &PendingAuthorization{
		AccountID: accountID,
		State:     state,
		Scopes:    conf.Scopes,
		CreatedAt: time.Now(),
	}
	f.byAccount[accountID] = state

	f.logger.Debug("issued consent url",
		"account", accountID,
		"scope_count", len(conf.Scopes))

	return url, nil
}

// Exchange swaps an authorization code for a credential. The pending
// authorization for the account, if any, supplies the scope fallback
// when the token response carries no scope field; it is consumed only
// once the exchange succeeds, so a retry after a mistyped code still
// finds it. A code is single-use; reuse is rejected by the
// authorization server and surfaces as KindExchangeError, never as a
// stale success.
func (f *Flow) Exchange(ctx context.Context, accountID, code string) (*Credential, error) {
	pending := f.peekPending(accountID)

	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError(KindExchangeError, err,
			"exchanging authorization code for %s (codes are single-use)", accountID)
	}

	var fallback []string
	if pending != nil {
		fallback = pending.Scopes
		f.consumePending(accountID, pending.State)
	}

	cred := credentialFromToken(tok, fallback)

	f.logger.Info("exchanged authorization code",
		"account", accountID,
		"scope_count", len(cred.Scopes),
		"expiry", cred.Expiry,
		"has_refresh_token", cred.RefreshToken != "")

	return cred, nil
}

// PendingScopes returns the scopes of the account's pending authorization
// without consuming it, or nil when none exists.
func (f *Flow) PendingScopes(accountID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.byAccount[accountID]
	if !ok {
		return nil
	}

	p, ok := f.pending[state]
	if !ok {
		return nil
	}

	return sortedScopes(p.Scopes)
}

// peekPending returns the pending authorization for an account without
// removing it, or nil.
func (f *Flow) peekPending(accountID string) *PendingAuthorization {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.byAccount[accountID]
	if !ok {
		return nil
	}

	return f.pending[state]
}

// consumePending removes the pending authorization identified by state.
// The byAccount index is cleared only while it still points at that
// state, so a consent URL issued in the meantime is untouched.
func (f *Flow) consumePending(accountID, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.pending, state)
	if f.byAccount[accountID] == state {
		delete(f.byAccount, accountID)
	}
}

// evictOldestLocked drops the oldest pending entry when the cap is
// reached. Caller holds f.mu.
func (f *Flow) evictOldestLocked() {
	if len(f.pending) < maxPending {
		return
	}

	var oldest *PendingAuthorization
	for _, p := range f.pending {
		if oldest == nil || p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = p
		}
	}

	if oldest != nil {
		delete(f.pending, oldest.State)
		delete(f.byAccount, oldest.AccountID)
	}
}

// gcLoop periodically removes expired pending authorizations.
func (f *Flow) gcLoop() {
	ticker := time.NewTicker(pendingCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.cleanupExpired()
		case <-f.stopGC:
			return
		}
	}
}

// cleanupExpired removes pending authorizations older than the TTL.
func (f *Flow) cleanupExpired() {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-f.ttl)
	deleted := 0

	for state, p := range f.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(f.pending, state)
			delete(f.byAccount, p.AccountID)
			deleted++
		}
	}

	if deleted > 0 {
		f.logger.Debug("cleaned up pending authorizations", "deleted", deleted)
	}
}

// randomState generates a cryptographically random state value.
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", wrapError(KindExchangeError, err, "generating state value")
	}

	return hex.EncodeToString(b), nil
}
