// Package cmd implements the command-line interface for accountkeeper.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing the credential lifecycle tools
//   - accounts: Inspect and manage the account registry from the terminal
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
