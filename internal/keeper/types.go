package keeper

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Account is a registered identity, independent of any token state.
// An account may exist without ever having been authorized.
type Account struct {
	// ID is the unique account identifier, typically an email address.
	ID string `json:"id"`

	// Category is a free-text classification, e.g. "work" or "personal".
	Category string `json:"category,omitempty"`

	// Description is free text supplied at registration.
	Description string `json:"description,omitempty"`

	// CreatedAt is the time of first registration.
	CreatedAt time.Time `json:"created_at"`

	// Seq is the registration sequence number. It preserves insertion
	// order across restarts so List is stable.
	Seq uint64 `json:"seq"`
}

// Credential is one OAuth2 grant for one account. At most one credential
// exists per account; a newer grant fully replaces the previous one.
type Credential struct {
	// AccessToken is the short-lived bearer token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the long-lived token used to obtain new access
	// tokens. May be empty when the provider did not issue one (e.g.
	// re-consent of an already-granted scope set).
	RefreshToken string `json:"refresh_token,omitempty"`

	// Expiry is the absolute time after which AccessToken must not be
	// used. A past expiry makes the credential stale, not invalid: it
	// remains a refresh candidate while RefreshToken is present.
	Expiry time.Time `json:"expiry"`

	// Scopes are the scopes the authorization server actually granted.
	Scopes []string `json:"scopes"`
}

// Expired reports whether the access token is expired or will expire
// within skew. A zero expiry means the token does not expire.
func (c *Credential) Expired(skew time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(c.Expiry)
}

// Token converts the credential to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// Summary returns the credential's non-secret metadata. Raw token material
// never leaves the keeper through a summary.
func (c *Credential) Summary() *CredentialSummary {
	return &CredentialSummary{
		Scopes:          sortedScopes(c.Scopes),
		Expiry:          c.Expiry,
		Expired:         c.Expired(0),
		HasRefreshToken: c.RefreshToken != "",
	}
}

// CredentialSummary describes a credential without exposing secrets.
type CredentialSummary struct {
	Scopes          []string  `json:"scopes"`
	Expiry          time.Time `json:"expiry"`
	Expired         bool      `json:"expired"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

// AccountInfo pairs an account with its credential summary for listing.
// Credential is nil when the account was never authorized.
type AccountInfo struct {
	Account    Account            `json:"account"`
	Credential *CredentialSummary `json:"credential,omitempty"`
}

// credentialFromToken builds a credential from a token response. Granted
// scopes come from the response's scope field when the server includes
// one; otherwise fallback (the originally requested set) is assumed.
func credentialFromToken(tok *oauth2.Token, fallback []string) *Credential {
	scopes := fallback
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       sortedScopes(scopes),
	}
}
