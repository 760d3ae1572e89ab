package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the idempotency witness for a provider event. The existence
// of a row for an event id is the sole proof the event was applied; inserting
// the row and applying the deposit happen in one database transaction.
type WebhookEvent struct {
	EventID       string    `json:"event_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// ProviderEvent is the parsed payload of a provider notification.
type ProviderEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	WalletRef string `json:"wallet_number,omitempty"` // used when the event has no prior PENDING row
}

// IsChargeSuccess reports whether the event confirms a completed deposit.
func (e *ProviderEvent) IsChargeSuccess() bool {
	return e.EventType == "charge.success" && e.Status == "success"
}
