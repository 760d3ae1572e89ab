package ports

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrVersionConflict is returned by versioned wallet updates when the row's
// version no longer matches the one that was read. Callers retry the whole
// read-check-write sequence, bounded by the engine's retry budget.
var ErrVersionConflict = errors.New("wallet version conflict")

// IdentityRepository defines persistence operations for identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx read or mutate state inside an atomic unit; the
// engine never trusts a balance read outside the transaction that spends it.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*domain.Wallet, error)
	GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByNumberTx(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error)
	// ApplyDelta adds delta to the wallet balance iff the stored version still
	// equals expectedVersion, bumping the version. Returns ErrVersionConflict
	// when another mutation won the race.
	ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64, expectedVersion int64) error
	// SumBalances returns the total over all wallets (conservation audits).
	SumBalances(ctx context.Context) (int64, error)
}

// TransactionRepository defines persistence for the append-only transaction log.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	// MarkStatus performs the single PENDING -> terminal transition.
	MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, externalRef *string) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	// ListStalePendingDeposits feeds the reconciliation sweep.
	ListStalePendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)
}

// APIKeyRepository defines persistence for service credentials.
// Rows are never deleted; revocation is a terminal flag.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	CreateTx(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.APIKey, error)
	CountActive(ctx context.Context, identityID uuid.UUID, now time.Time) (int, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// WebhookEventRepository persists idempotency witnesses for provider events.
type WebhookEventRepository interface {
	// Insert records the event id inside the caller's transaction. Returns
	// false when a row already exists; the unique key on event_id serializes
	// duplicate deliveries without any separate lock.
	Insert(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (bool, error)
	Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
