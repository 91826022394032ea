package keeper

import (
	"errors"
	"fmt"
)

// Kind classifies a keeper failure. Callers branch on the kind rather than
// on error subtypes; every kind carries a default human-actionable
// resolution hint.
type Kind string

const (
	// KindNotRegistered means the operation referenced an unknown account.
	KindNotRegistered Kind = "not_registered"

	// KindInsufficientScope means the stored grant does not cover the
	// required scopes.
	KindInsufficientScope Kind = "insufficient_scope"

	// KindAuthorizationRequired means no usable credential exists and the
	// user must visit a consent URL.
	KindAuthorizationRequired Kind = "authorization_required"

	// KindExchangeError means the authorization code was invalid, expired,
	// or already consumed. Codes are single-use by protocol design.
	KindExchangeError Kind = "exchange_error"

	// KindRefreshRejected means the authorization server reported the
	// refresh token invalid or revoked. Terminal for that credential.
	KindRefreshRejected Kind = "refresh_rejected"

	// KindTransientRefresh means the refresh failed on a network or
	// server error. Retryable by the caller.
	KindTransientRefresh Kind = "transient_refresh_error"

	// KindStoreUnavailable means the durability layer failed. Fatal to
	// the request; never silently treated as "no credential".
	KindStoreUnavailable Kind = "store_unavailable"
)

// resolutions maps each kind to the default next action surfaced to users.
var resolutions = map[Kind]string{
	KindNotRegistered:         "register the account first with account_register",
	KindInsufficientScope:     "re-authorize with account_authorize to grant the missing scopes",
	KindAuthorizationRequired: "visit the consent URL from account_authorize, then run account_complete_auth with the code",
	KindExchangeError:         "request a fresh consent URL with account_authorize and use the new code",
	KindRefreshRejected:       "re-authorize the account with account_authorize",
	KindTransientRefresh:      "retry later",
	KindStoreUnavailable:      "check the state database path and permissions, then retry",
}

// Error is the single failure type returned by the keeper. It carries a
// machine-readable kind, a message, and a resolution hint.
type Error struct {
	Kind       Kind
	Message    string
	Resolution string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error with the kind's default resolution.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Resolution: resolutions[kind],
	}
}

// wrapError is newError with an underlying cause attached.
func wrapError(kind Kind, err error, format string, args ...any) *Error {
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of err, or the empty string when err is not a
// keeper error.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}
