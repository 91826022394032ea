package google

import (
	"sort"
	"strings"

	calendar "google.golang.org/api/calendar/v3"
	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	goauth2 "google.golang.org/api/oauth2/v2"
	tasks "google.golang.org/api/tasks/v1"
)

// scopeAliases maps short names accepted in tool arguments to canonical
// Google scope URLs. Full URLs pass through ExpandScopes untouched, so
// the aliases are a convenience, not a gate.
var scopeAliases = map[string]string{
	"gmail":             gmail.MailGoogleComScope,
	"gmail.readonly":    gmail.GmailReadonlyScope,
	"gmail.send":        gmail.GmailSendScope,
	"gmail.modify":      gmail.GmailModifyScope,
	"calendar":          calendar.CalendarScope,
	"calendar.readonly": calendar.CalendarReadonlyScope,
	"drive":             drive.DriveScope,
	"drive.readonly":    drive.DriveReadonlyScope,
	"drive.file":        drive.DriveFileScope,
	"docs.readonly":     docs.DocumentsReadonlyScope,
	"tasks":             tasks.TasksScope,
	"tasks.readonly":    tasks.TasksReadonlyScope,
	"userinfo.email":    goauth2.UserinfoEmailScope,
	"openid":            goauth2.OpenIDScope,
}

// IdentityScopes are always added to authorization requests so the
// keeper can resolve which Google identity granted the credential.
var IdentityScopes = []string{
	goauth2.OpenIDScope,
	goauth2.UserinfoEmailScope,
}

// ExpandScopes resolves scope aliases to canonical scope URLs. Unknown
// values are passed through unchanged; the authorization server is the
// authority on what is a valid scope. The result is deduplicated and
// sorted.
func ExpandScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if canonical, ok := scopeAliases[strings.ToLower(s)]; ok {
			s = canonical
		}
		seen[s] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)

	return out
}

// ScopeAliases returns the known aliases, sorted. Used in tool
// descriptions so callers can discover the short forms.
func ScopeAliases() []string {
	out := make([]string, 0, len(scopeAliases))
	for alias := range scopeAliases {
		out = append(out, alias)
	}
	sort.Strings(out)

	return out
}
