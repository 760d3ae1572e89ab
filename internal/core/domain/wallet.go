package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds an identity's balance in exact minor currency units.
// Version is the optimistic-concurrency counter: every balance mutation
// must carry the version it read, and bumps it by one on success.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	IdentityID   uuid.UUID `json:"identity_id"`
	WalletNumber string    `json:"wallet_number"` // externally shareable
	Balance      int64     `json:"balance"`       // minor units, never negative
	Currency     string    `json:"currency"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanDebit reports whether the wallet holds at least amount.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}
