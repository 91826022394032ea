// Package keeper implements the OAuth2 credential lifecycle for multiple
// Google accounts: a durable token store, an account registry, consent URL
// generation and authorization-code exchange, single-flight token refresh,
// and the Manager facade that composes them into the operations exposed to
// MCP tools and the CLI.
//
// The package is transport-agnostic. It never talks MCP or HTTP itself; it
// only talks to the authorization server through golang.org/x/oauth2 and to
// disk through the Store interface.
package keeper
