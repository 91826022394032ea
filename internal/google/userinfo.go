package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// AuthorizedEmail returns the email address of the Google identity the
// token belongs to. Requires the userinfo.email scope on the token.
func AuthorizedEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := goauth2.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return "", fmt.Errorf("creating userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetching userinfo: %w", err)
	}

	if info.Email == "" {
		return "", fmt.Errorf("userinfo response carried no email; was the userinfo.email scope granted?")
	}

	return info.Email, nil
}
