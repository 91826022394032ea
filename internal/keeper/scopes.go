package keeper

import (
	"sort"
	"strings"
)

// ScopesSatisfied reports whether every required scope is present in the
// granted set. Comparison is exact string equality; scope strings must use
// the authorization server's canonical form. An empty required set is
// always satisfied.
func ScopesSatisfied(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// MissingScopes returns the required scopes absent from the granted set,
// sorted. Used for error messages.
func MissingScopes(granted, required []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	sort.Strings(missing)
	return missing
}

// UnionScopes merges two scope sets, deduplicated and sorted.
func UnionScopes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseScopes splits a scope argument on spaces and commas, dropping
// empty entries. It performs no other normalization.
func ParseScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sortedScopes(scopes []string) []string {
	out := make([]string, len(scopes))
	copy(out, scopes)
	sort.Strings(out)
	return out
}
