package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
)

// TransactionStatus represents the lifecycle state of a transaction.
// PENDING transitions exactly once to SUCCESS or FAILED; terminal rows are
// never mutated again, corrections are new compensating transactions.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry for a balance-affecting event.
// WalletID is the wallet whose history the row belongs to; for transfers the
// counterparty wallet and a shared transfer id link the two legs.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	WalletID             uuid.UUID         `json:"wallet_id"`
	Type                 TransactionType   `json:"type"`
	Amount               int64             `json:"amount"` // minor units, always positive
	Reference            string            `json:"reference"`
	CounterpartyWalletID *uuid.UUID        `json:"counterparty_wallet_id,omitempty"`
	TransferID           *uuid.UUID        `json:"transfer_id,omitempty"`
	ExternalRef          *string           `json:"external_ref,omitempty"` // provider transaction id
	Status               TransactionStatus `json:"status"`
	CreatedAt            time.Time         `json:"created_at"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess ||
		t.Status == TransactionStatusFailed
}
