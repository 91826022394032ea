// Package account_tools registers the MCP tools for the credential
// lifecycle: registering accounts, validating credentials, running the
// authorization flow, and revoking grants.
package account_tools
