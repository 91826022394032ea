// Package common provides shared helpers for MCP tool handlers:
// argument extraction and the instrumentation wrapper that records
// metrics, traces, and audit entries around each tool call.
package common
