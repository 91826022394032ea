package common

import (
	"fmt"
	"strings"

	"github.com/teemow/accountkeeper/internal/google"
	"github.com/teemow/accountkeeper/internal/keeper"
)

// RequireAccount extracts the mandatory "account" argument from request
// arguments. Account identifiers are email addresses; leading and
// trailing whitespace is trimmed.
func RequireAccount(args map[string]interface{}) (string, error) {
	accountVal, ok := args["account"].(string)
	if !ok {
		return "", fmt.Errorf("account parameter is required")
	}

	account := strings.TrimSpace(accountVal)
	if account == "" {
		return "", fmt.Errorf("account parameter must not be empty")
	}
	return account, nil
}

// OptionalString extracts a string argument, returning "" when absent.
func OptionalString(args map[string]interface{}, key string) string {
	val, _ := args[key].(string)
	return strings.TrimSpace(val)
}

// ScopesFromArgs extracts the "scopes" argument and expands well-known
// aliases (gmail, calendar.readonly, ...) to full scope URLs. The
// argument accepts a space or comma separated string or a JSON array of
// strings. Returns nil when the argument is absent.
func ScopesFromArgs(args map[string]interface{}) ([]string, error) {
	raw, ok := args["scopes"]
	if !ok || raw == nil {
		return nil, nil
	}

	var scopes []string
	switch v := raw.(type) {
	case string:
		scopes = keeper.ParseScopes(v)
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("scopes entries must be strings, got %T", item)
			}
			scopes = append(scopes, keeper.ParseScopes(s)...)
		}
	default:
		return nil, fmt.Errorf("scopes must be a string or array of strings, got %T", raw)
	}

	return google.ExpandScopes(scopes), nil
}
