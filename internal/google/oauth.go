package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// RedirectOOB is the out-of-band redirect target: the authorization
// server displays the code for the user to paste back instead of
// redirecting to a local listener.
const RedirectOOB = "urn:ietf:wg:oauth:2.0:oob"

// OAuthConfig builds the OAuth2 client configuration for Google's
// authorization server. Scopes are set per authorization request, not
// here.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = RedirectOOB
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
	}
}
