package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity represents a user or service principal. Every identity owns
// exactly one wallet, created together with it.
type Identity struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	CredentialHash string    `json:"-"` // Never expose
	CreatedAt      time.Time `json:"created_at"`
}
