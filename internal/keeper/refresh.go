package keeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// transientRetryDelay is the pause before the single internal retry of a
// refresh that failed transiently.
const transientRetryDelay = 500 * time.Millisecond

// Refresher exchanges refresh tokens for new access tokens and persists
// the result. Concurrent refreshes for the same account collapse into one
// network call; all waiters share its outcome.
type Refresher struct {
	conf       *oauth2.Config
	store      CredentialStore
	logger     *slog.Logger
	group      singleflight.Group
	retryDelay time.Duration
}

// NewRefresher creates a refresher that persists refreshed credentials
// through store.
func NewRefresher(conf *oauth2.Config, store CredentialStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		conf:       conf,
		store:      store,
		logger:     logger,
		retryDelay: transientRetryDelay,
	}
}

// Refresh obtains a fresh access token for the account using cred's
// refresh token, persists the result, and returns the new credential.
// The in-flight exchange runs on a context detached from the caller's
// cancellation so a completed refresh is always persisted, even when the
// triggering caller has gone away. A transient failure is retried once
// internally before being surfaced as KindTransientRefresh.
func (r *Refresher) Refresh(ctx context.Context, accountID string, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, newError(KindAuthorizationRequired,
			"credential for %s has no refresh token", accountID)
	}

	v, err, shared := r.group.Do(accountID, func() (any, error) {
		return r.doRefresh(context.WithoutCancel(ctx), accountID, cred)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.logger.Debug("refresh shared with concurrent caller", "account", accountID)
	}

	return v.(*Credential), nil
}

// doRefresh performs the token endpoint call, retrying once on transient
// failure, and persists the outcome.
func (r *Refresher) doRefresh(ctx context.Context, accountID string, cred *Credential) (*Credential, error) {
	tok, err := r.refreshToken(ctx, cred)
	if err != nil && isTransient(err) {
		r.logger.Warn("transient refresh failure, retrying",
			"account", accountID,
			"error", err)
		time.Sleep(r.retryDelay)
		tok, err = r.refreshToken(ctx, cred)
	}

	if err != nil {
		if isTransient(err) {
			return nil, wrapError(KindTransientRefresh, err,
				"refreshing token for %s", accountID)
		}

		return nil, wrapError(KindRefreshRejected, err,
			"refresh token for %s rejected", accountID)
	}

	fresh := credentialFromToken(tok, cred.Scopes)

	// Providers that do not rotate refresh tokens omit them from the
	// response. Retain the previous one so the credential stays refreshable.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}

	if err := r.store.PutCredential(ctx, accountID, fresh); err != nil {
		return nil, err
	}

	r.logger.Info("refreshed credential",
		"account", accountID,
		"expiry", fresh.Expiry,
		"rotated_refresh_token", tok.RefreshToken != "")

	return fresh, nil
}

// refreshToken performs one token endpoint round trip.
func (r *Refresher) refreshToken(ctx context.Context, cred *Credential) (*oauth2.Token, error) {
	src := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})

	return src.Token()
}

// isTransient reports whether a token endpoint error is retryable. Server
// 5xx responses and transport failures are transient; a definitive
// protocol rejection (invalid_grant and friends) is not.
func isTransient(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}

	// No RetrieveError means the response never arrived: DNS, dial, or
	// timeout failures.
	return true
}
