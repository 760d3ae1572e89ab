package ports

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Credential is an opaque presented credential: a bearer session token, a
// service key, or both (session wins when both are present).
type Credential struct {
	SessionToken string
	ServiceKey   string
}

// CredentialVerifier resolves a presented credential to an identity plus the
// permission set it carries. Read-only; never mutates credential state.
type CredentialVerifier interface {
	Resolve(ctx context.Context, cred Credential) (*domain.Identity, domain.PermissionSet, error)
}

// TokenService handles session JWT operations.
type TokenService interface {
	Generate(identityID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed session-token claims.
type TokenClaims struct {
	IdentityID uuid.UUID
	Email      string
}

// KeyHasher produces the deterministic one-way digest stored for API keys,
// and compares presented secrets against it in constant time.
type KeyHasher interface {
	Digest(secret string) string
	Matches(secret string, digest string) bool
}

// CredentialHasher handles identity credential material (Argon2id).
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// SignatureVerifier handles the provider's keyed-digest webhook signatures.
type SignatureVerifier interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// IdentityProvider authenticates a principal. The engine depends only on the
// fact that an identity was authenticated, not on how.
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, secret string) (*domain.Identity, error)
}

// --- Transaction Engine ---

// TransferRequest holds validated input for a wallet-to-wallet transfer.
type TransferRequest struct {
	IdentityID       uuid.UUID
	DestWalletNumber string
	Amount           int64
	Permissions      domain.PermissionSet
}

// TransferResult holds both ledger legs of a completed transfer.
type TransferResult struct {
	TransferID uuid.UUID
	Outgoing   *domain.Transaction
	Incoming   *domain.Transaction
}

// DepositRequest holds validated input for initiating a deposit.
type DepositRequest struct {
	IdentityID  uuid.UUID
	Email       string
	Amount      int64
	Permissions domain.PermissionSet
}

// DepositIntent is returned to the caller to complete payment out-of-band.
type DepositIntent struct {
	Reference        string
	AuthorizationURL string
}

// ConfirmedDeposit is a provider-confirmed deposit handed to the engine by
// the webhook gate. The gate guarantees at-most-once per event id.
type ConfirmedDeposit struct {
	EventID      string
	Reference    string
	Amount       int64
	ProviderTxID string
	WalletRef    string // wallet number, used when no PENDING row exists
}

// LedgerService is the transaction engine: every mutation runs inside an
// atomic unit scoped to the wallet rows it touches.
type LedgerService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositIntent, error)
	// ApplyConfirmedDeposit runs inside the caller's transaction so the
	// idempotency witness and the balance change commit or abort together.
	ApplyConfirmedDeposit(ctx context.Context, tx pgx.Tx, conf ConfirmedDeposit) (*domain.Transaction, error)
	GetBalance(ctx context.Context, identityID uuid.UUID) (*domain.Wallet, error)
	GetDepositStatus(ctx context.Context, reference string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
}

// --- Webhook Idempotency Gate ---

// WebhookGate verifies provider-callback authenticity and applies each
// external event at most once.
type WebhookGate interface {
	Handle(ctx context.Context, rawBody []byte, signatureHeader string) error
}

// EventDedupCache is the Redis fast path in front of the durable witness.
// It is advisory only: written after commit, consulted before the database.
type EventDedupCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string, ttl time.Duration) error
}

// --- API Key Lifecycle ---

// CreatedKey pairs the stored record with the plaintext secret, which exists
// only in this value and is never retrievable again.
type CreatedKey struct {
	Key       *domain.APIKey
	Plaintext string
}

// APIKeyService manages service-credential lifecycle.
type APIKeyService interface {
	Create(ctx context.Context, identityID uuid.UUID, name string, perms domain.PermissionSet, expiry string) (*CreatedKey, error)
	Rollover(ctx context.Context, identityID, keyID uuid.UUID) (*CreatedKey, error)
	List(ctx context.Context, identityID uuid.UUID) ([]domain.APIKey, error)
	Revoke(ctx context.Context, identityID, keyID uuid.UUID) error
}

// --- Payment Provider ---

// ProviderVerification is the provider's authoritative view of a deposit.
type ProviderVerification struct {
	Reference    string
	Amount       int64
	Status       string
	ProviderTxID string
}

// ProviderClient talks to the external payment provider.
type ProviderClient interface {
	InitializeDeposit(ctx context.Context, email string, amount int64, reference string) (string, error)
	VerifyDeposit(ctx context.Context, reference string) (*ProviderVerification, error)
}
