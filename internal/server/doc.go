// Package server holds the runtime shell around the credential keeper:
// the dependency container handed to tool handlers, health endpoints,
// and the sidecar metrics listener.
//
// The MCP transport is stdio; the HTTP surface here exists only for
// operational probes and Prometheus scraping on a separate port.
package server
