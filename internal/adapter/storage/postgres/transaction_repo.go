package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_id, type, amount, reference, counterparty_wallet_id, transfer_id, external_ref, status, created_at, processed_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Reference,
		&t.CounterpartyWalletID, &t.TransferID, &t.ExternalRef,
		&t.Status, &t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Create appends a ledger entry inside the caller's transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions
		(id, wallet_id, type, amount, reference, counterparty_wallet_id, transfer_id, external_ref, status, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Amount, t.Reference,
		t.CounterpartyWalletID, t.TransferID, t.ExternalRef,
		t.Status, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by its UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByReference fetches a transaction by its ledger reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return t, nil
}

// GetByReferenceTx fetches a transaction by reference inside the caller's
// transaction.
func (r *TransactionRepo) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	t, err := scanTransaction(tx.QueryRow(ctx, query, reference))
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference in tx: %w", err)
	}
	return t, nil
}

// MarkStatus performs the single PENDING to terminal transition. The status
// guard in the WHERE clause keeps terminal rows immutable.
func (r *TransactionRepo) MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, externalRef *string) error {
	query := `UPDATE transactions
		SET status = $1, external_ref = COALESCE($2, external_ref), processed_at = NOW()
		WHERE id = $3 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, status, externalRef, id)
	if err != nil {
		return fmt.Errorf("mark transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	return nil
}

// ListByWallet returns a page of a wallet's history, newest first.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListStalePendingDeposits returns PENDING deposits created before olderThan.
func (r *TransactionRepo) ListStalePendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE type = 'DEPOSIT' AND status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending deposits: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Reference,
			&t.CounterpartyWalletID, &t.TransferID, &t.ExternalRef,
			&t.Status, &t.CreatedAt, &t.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
