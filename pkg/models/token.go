package models

import "time"

// APIToken is a stored opaque API token. Only the SHA-256 hash of the
// plaintext is persisted; issuance happens outside this core.
type APIToken struct {
	ID          string
	PrincipalID string
	DisplayName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// IsExpired returns true if the token has passed its expiry time.
func (t *APIToken) IsExpired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// IsRevoked returns true if the token has been revoked.
func (t *APIToken) IsRevoked() bool {
	return t.RevokedAt != nil
}
