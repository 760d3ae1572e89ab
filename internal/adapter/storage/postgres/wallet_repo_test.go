package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(identityID uuid.UUID) *domain.Wallet {
	return &domain.Wallet{
		ID:           uuid.New(),
		IdentityID:   identityID,
		WalletNumber: "900123456789012",
		Balance:      5000,
		Currency:     "NGN",
		Version:      3,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func walletCols() []string {
	return []string{"id", "identity_id", "wallet_number", "balance", "currency", "version", "created_at", "updated_at"}
}

func walletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletCols()).AddRow(
		w.ID, w.IdentityID, w.WalletNumber, w.Balance,
		w.Currency, w.Version, w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(w.ID, w.IdentityID, w.WalletNumber, w.Balance,
			w.Currency, w.Version, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(w.ID).
		WillReturnRows(walletRow(w))

	result, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.Equal(t, w.Balance, result.Balance)
	assert.Equal(t, w.Version, result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(walletCols()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE wallet_number").
		WithArgs(w.WalletNumber).
		WillReturnRows(walletRow(w))

	result, err := repo.GetByNumber(context.Background(), w.WalletNumber)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.WalletNumber, result.WalletNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ApplyDelta(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets").
		WithArgs(int64(-2000), w.ID, w.Version).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.ApplyDelta(context.Background(), tx, w.ID, -2000, w.Version)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ApplyDelta_VersionConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets").
		WithArgs(int64(2000), w.ID, w.Version).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.ApplyDelta(context.Background(), tx, w.ID, 2000, w.Version)
	assert.ErrorIs(t, err, ports.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_SumBalances(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(123456)))

	total, err := repo.SumBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
