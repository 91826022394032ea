// Package google holds the Google-specific edges of the keeper: the
// OAuth2 client configuration, human-friendly scope aliases, and the
// userinfo lookup used to confirm which identity granted a credential.
package google
