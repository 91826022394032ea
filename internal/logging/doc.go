// Package logging centralizes structured logging for accountkeeper on
// top of the standard library's slog.
//
// Two rules hold everywhere:
//
//   - Log output goes to stderr. stdout belongs to the stdio transport
//     and a single stray log line there corrupts the protocol stream.
//   - Token material is never logged. Use SanitizeToken for lengths and
//     AnonymizeEmail or UserHash when an account must be correlated
//     without exposing the address.
package logging
