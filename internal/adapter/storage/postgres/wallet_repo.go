package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, identity_id, wallet_number, balance, currency, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.IdentityID, &w.WalletNumber, &w.Balance,
		&w.Currency, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

// Create inserts a new wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, identity_id, wallet_number, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.IdentityID, w.WalletNumber, w.Balance,
		w.Currency, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByIdentityID fetches the wallet owned by an identity.
func (r *WalletRepo) GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE identity_id = $1`
	w, err := scanWallet(r.pool.QueryRow(ctx, query, identityID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by identity: %w", err)
	}
	return w, nil
}

// GetByNumber fetches a wallet by its externally shareable number.
func (r *WalletRepo) GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number = $1`
	w, err := scanWallet(r.pool.QueryRow(ctx, query, walletNumber))
	if err != nil {
		return nil, fmt.Errorf("get wallet by number: %w", err)
	}
	return w, nil
}

// GetByIDTx fetches a wallet by ID inside the caller's transaction.
func (r *WalletRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id in tx: %w", err)
	}
	return w, nil
}

// GetByNumberTx fetches a wallet by number inside the caller's transaction.
func (r *WalletRepo) GetByNumberTx(ctx context.Context, tx pgx.Tx, walletNumber string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number = $1`
	w, err := scanWallet(tx.QueryRow(ctx, query, walletNumber))
	if err != nil {
		return nil, fmt.Errorf("get wallet by number in tx: %w", err)
	}
	return w, nil
}

// ApplyDelta adjusts the balance by delta, guarded by the version counter.
// The CHECK constraint on balance backs up the in-code sufficiency check;
// zero rows affected means another writer bumped the version first.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64, expectedVersion int64) error {
	query := `UPDATE wallets
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`

	tag, err := tx.Exec(ctx, query, delta, walletID, expectedVersion)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}
	return nil
}

// SumBalances returns the total balance across all wallets.
func (r *WalletRepo) SumBalances(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM wallets`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum wallet balances: %w", err)
	}
	return total, nil
}
