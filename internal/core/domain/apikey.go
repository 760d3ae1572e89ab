package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a service credential. Only the SHA-256 digest of the secret is
// stored; the plaintext exists exactly once, in the creation response.
// Rows are never deleted; revocation is terminal, for audit continuity.
type APIKey struct {
	ID          uuid.UUID     `json:"id"`
	IdentityID  uuid.UUID     `json:"identity_id"`
	Name        string        `json:"name"`
	KeyHash     string        `json:"-"`
	Permissions PermissionSet `json:"permissions"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"` // nil = non-expiring
	Revoked     bool          `json:"revoked"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IsExpired reports whether the key has lapsed at the given instant.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// IsUsable reports whether the key may authenticate at the given instant.
func (k *APIKey) IsUsable(now time.Time) bool {
	return !k.Revoked && !k.IsExpired(now)
}
