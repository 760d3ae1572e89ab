package dto

import (
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
)

// LoginRequest is the request body for session login.
type LoginRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Secret string `json:"secret" binding:"required,min=8,max=128"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	DestWalletNumber string `json:"dest_wallet_number" binding:"required,len=15,numeric"`
	Amount           int64  `json:"amount" binding:"required,gt=0"`
}

// TransferResponse pairs the two ledger legs of a completed transfer.
type TransferResponse struct {
	TransferID string              `json:"transfer_id"`
	Outgoing   TransactionResponse `json:"outgoing"`
	Incoming   TransactionResponse `json:"incoming"`
}

// DepositRequest is the request body for initiating a deposit.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// DepositIntentResponse is the response for a newly initiated deposit.
type DepositIntentResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
	Currency     string `json:"currency"`
}

// TransactionResponse is the wire form of one ledger entry.
type TransactionResponse struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Amount      int64   `json:"amount"`
	Reference   string  `json:"reference"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction page.
type TransactionListResponse struct {
	Items  []TransactionResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// CreateKeyRequest is the request body for minting an API key.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=100,key_name"`
	Permissions []string `json:"permissions" binding:"required,min=1"`
	Expiry      string   `json:"expiry"` // validated by the key service, empty is rejected
}

// KeyResponse is the wire form of an API key record. The secret is absent:
// it is returned exactly once, at creation, in CreatedKeyResponse.
type KeyResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   *string  `json:"expires_at,omitempty"`
	Revoked     bool     `json:"revoked"`
	CreatedAt   string   `json:"created_at"`
}

// CreatedKeyResponse carries the plaintext secret alongside the record.
type CreatedKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

// ToTransactionResponse maps a ledger entry to its wire form.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:        t.ID.String(),
		Type:      string(t.Type),
		Amount:    t.Amount,
		Reference: t.Reference,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.ProcessedAt != nil {
		s := t.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

// ToKeyResponse maps an API key record to its wire form.
func ToKeyResponse(k *domain.APIKey) KeyResponse {
	resp := KeyResponse{
		ID:          k.ID.String(),
		Name:        k.Name,
		Permissions: k.Permissions.Strings(),
		Revoked:     k.Revoked,
		CreatedAt:   k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.ExpiresAt != nil {
		s := k.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

// ToCreatedKeyResponse maps a freshly minted key, plaintext included.
func ToCreatedKeyResponse(created *ports.CreatedKey) CreatedKeyResponse {
	return CreatedKeyResponse{
		KeyResponse: ToKeyResponse(created.Key),
		Key:         created.Plaintext,
	}
}
