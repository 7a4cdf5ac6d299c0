package domain

import "context"

// CredentialStore holds the current session. Get returns nil credentials and
// a nil error when the client is anonymous. Set replaces the whole session and
// Clear is idempotent.
type CredentialStore interface {
	Get(ctx context.Context) (*Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}
