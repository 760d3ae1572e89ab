package service

import (
	"context"
	"strings"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	provider   *mocks.MockProviderClient
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		provider:   mocks.NewMockProviderClient(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.walletRepo, d.txRepo, d.provider, d.transactor, 3, 100, zerolog.Nop())
	return d
}

func allPerms() domain.PermissionSet { return domain.AllPermissions }

// ==================== Transfer Tests ====================

func TestLedgerService_Transfer_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	sourceID := uuid.New()
	destID := uuid.New()
	tx := &mockTx{}

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{
		ID: sourceID, IdentityID: identityID, WalletNumber: "111111111111111",
	}, nil)
	d.walletRepo.EXPECT().GetByNumber(ctx, "222222222222222").Return(&domain.Wallet{
		ID: destID, WalletNumber: "222222222222222",
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, sourceID).Return(&domain.Wallet{
		ID: sourceID, Balance: 5000, Version: 3,
	}, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, destID).Return(&domain.Wallet{
		ID: destID, Balance: 0, Version: 7,
	}, nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, sourceID, int64(-2000), int64(3)).Return(nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, destID, int64(2000), int64(7)).Return(nil)

	var legs []*domain.Transaction
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
		legs = append(legs, txn)
		return nil
	}).Times(2)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: "222222222222222",
		Amount:           2000,
		Permissions:      allPerms(),
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, legs, 2)

	assert.Equal(t, domain.TransactionTypeTransferOut, result.Outgoing.Type)
	assert.Equal(t, domain.TransactionTypeTransferIn, result.Incoming.Type)
	assert.Equal(t, int64(2000), result.Outgoing.Amount)
	assert.Equal(t, int64(2000), result.Incoming.Amount)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Outgoing.Status)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Incoming.Status)
	require.NotNil(t, result.Outgoing.TransferID)
	require.NotNil(t, result.Incoming.TransferID)
	assert.Equal(t, *result.Outgoing.TransferID, *result.Incoming.TransferID)
	assert.Equal(t, destID, *result.Outgoing.CounterpartyWalletID)
	assert.Equal(t, sourceID, *result.Incoming.CounterpartyWalletID)
}

func TestLedgerService_Transfer_PermissionDenied(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	result, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		IdentityID:       uuid.New(),
		DestWalletNumber: "222222222222222",
		Amount:           1000,
		Permissions:      domain.PermissionSet{domain.PermissionRead},
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "AUTH_004")
}

func TestLedgerService_Transfer_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	result, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		IdentityID:       uuid.New(),
		DestWalletNumber: "222222222222222",
		Amount:           0,
		Permissions:      allPerms(),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "WAL_002")
}

func TestLedgerService_Transfer_SelfTransfer(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	walletID := uuid.New()
	wallet := &domain.Wallet{ID: walletID, IdentityID: identityID, WalletNumber: "111111111111111"}

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(wallet, nil)
	d.walletRepo.EXPECT().GetByNumber(ctx, "111111111111111").Return(wallet, nil)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: "111111111111111",
		Amount:           1000,
		Permissions:      allPerms(),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "WAL_005")
}

func TestLedgerService_Transfer_InsufficientFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	sourceID := uuid.New()
	destID := uuid.New()
	tx := &mockTx{}

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: sourceID}, nil)
	d.walletRepo.EXPECT().GetByNumber(ctx, "222222222222222").Return(&domain.Wallet{ID: destID}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, sourceID).Return(&domain.Wallet{ID: sourceID, Balance: 1500}, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, destID).Return(&domain.Wallet{ID: destID}, nil)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: "222222222222222",
		Amount:           2000,
		Permissions:      allPerms(),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "WAL_001")
}

func TestLedgerService_Transfer_UnknownDestination(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: uuid.New()}, nil)
	d.walletRepo.EXPECT().GetByNumber(ctx, "999999999999999").Return(nil, nil)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: "999999999999999",
		Amount:           1000,
		Permissions:      allPerms(),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "WAL_003")
}

func TestLedgerService_Transfer_RetryBudgetExhausted(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	sourceID := uuid.New()
	destID := uuid.New()
	tx := &mockTx{}

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: sourceID}, nil)
	d.walletRepo.EXPECT().GetByNumber(ctx, "222222222222222").Return(&domain.Wallet{ID: destID}, nil)

	// Every attempt loses the version race on the source wallet.
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(3)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, sourceID).Return(&domain.Wallet{
		ID: sourceID, Balance: 5000, Version: 3,
	}, nil).Times(3)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, destID).Return(&domain.Wallet{
		ID: destID, Version: 7,
	}, nil).Times(3)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, sourceID, int64(-2000), int64(3)).
		Return(ports.ErrVersionConflict).Times(3)

	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: "222222222222222",
		Amount:           2000,
		Permissions:      allPerms(),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assertAppError(t, err, "WAL_006")
}

// ==================== Deposit Tests ====================

func TestLedgerService_InitiateDeposit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: walletID}, nil)
	d.provider.EXPECT().InitializeDeposit(ctx, "ada@example.com", int64(5000), gomock.Any()).
		Return("https://pay.example.com/abc", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	var pending *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
		pending = txn
		return nil
	})

	intent, err := d.svc.InitiateDeposit(ctx, ports.DepositRequest{
		IdentityID:  identityID,
		Email:       "ada@example.com",
		Amount:      5000,
		Permissions: allPerms(),
	})
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.NotNil(t, pending)

	assert.True(t, strings.HasPrefix(intent.Reference, "DEP-"))
	assert.Equal(t, "https://pay.example.com/abc", intent.AuthorizationURL)
	assert.Equal(t, domain.TransactionStatusPending, pending.Status)
	assert.Equal(t, domain.TransactionTypeDeposit, pending.Type)
	assert.Equal(t, intent.Reference, pending.Reference)
	assert.Equal(t, walletID, pending.WalletID)
}

func TestLedgerService_InitiateDeposit_BelowMinimum(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	intent, err := d.svc.InitiateDeposit(context.Background(), ports.DepositRequest{
		IdentityID:  uuid.New(),
		Email:       "ada@example.com",
		Amount:      50,
		Permissions: allPerms(),
	})
	assert.Nil(t, intent)
	require.Error(t, err)
	assertAppError(t, err, "WAL_004")
}

func TestLedgerService_InitiateDeposit_PermissionDenied(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	intent, err := d.svc.InitiateDeposit(context.Background(), ports.DepositRequest{
		IdentityID:  uuid.New(),
		Email:       "ada@example.com",
		Amount:      5000,
		Permissions: domain.PermissionSet{domain.PermissionRead},
	})
	assert.Nil(t, intent)
	require.Error(t, err)
	assertAppError(t, err, "AUTH_004")
}

func TestLedgerService_InitiateDeposit_ProviderDown(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: uuid.New()}, nil)
	d.provider.EXPECT().InitializeDeposit(ctx, "ada@example.com", int64(5000), gomock.Any()).
		Return("", assert.AnError)

	intent, err := d.svc.InitiateDeposit(ctx, ports.DepositRequest{
		IdentityID:  identityID,
		Email:       "ada@example.com",
		Amount:      5000,
		Permissions: allPerms(),
	})
	assert.Nil(t, intent)
	require.Error(t, err)
	assertAppError(t, err, "SYS_002")
}

func TestLedgerService_ApplyConfirmedDeposit_SettlesPending(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	pendingID := uuid.New()
	tx := &mockTx{}

	d.txRepo.EXPECT().GetByReferenceTx(ctx, tx, "DEP-ref-1").Return(&domain.Transaction{
		ID:       pendingID,
		WalletID: walletID,
		Type:     domain.TransactionTypeDeposit,
		Amount:   5000,
		Status:   domain.TransactionStatusPending,
	}, nil)
	d.walletRepo.EXPECT().GetByIDTx(ctx, tx, walletID).Return(&domain.Wallet{
		ID: walletID, Balance: 100, Version: 2,
	}, nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, walletID, int64(5000), int64(2)).Return(nil)
	d.txRepo.EXPECT().MarkStatus(ctx, tx, pendingID, domain.TransactionStatusSuccess, gomock.Any()).Return(nil)

	txn, err := d.svc.ApplyConfirmedDeposit(ctx, tx, ports.ConfirmedDeposit{
		EventID:      "801",
		Reference:    "DEP-ref-1",
		Amount:       5000,
		ProviderTxID: "801",
	})
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	require.NotNil(t, txn.ExternalRef)
	assert.Equal(t, "801", *txn.ExternalRef)
}

func TestLedgerService_ApplyConfirmedDeposit_AlreadyTerminal(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.txRepo.EXPECT().GetByReferenceTx(ctx, tx, "DEP-ref-2").Return(&domain.Transaction{
		ID:     uuid.New(),
		Type:   domain.TransactionTypeDeposit,
		Amount: 5000,
		Status: domain.TransactionStatusSuccess,
	}, nil)
	// No balance mutation expected.

	txn, err := d.svc.ApplyConfirmedDeposit(ctx, tx, ports.ConfirmedDeposit{
		EventID:   "802",
		Reference: "DEP-ref-2",
		Amount:    5000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
}

func TestLedgerService_ApplyConfirmedDeposit_NoPendingRow(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	d.txRepo.EXPECT().GetByReferenceTx(ctx, tx, "DEP-orphan").Return(nil, nil)
	d.walletRepo.EXPECT().GetByNumberTx(ctx, tx, "333333333333333").Return(&domain.Wallet{
		ID: walletID, Version: 1,
	}, nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, walletID, int64(7000), int64(1)).Return(nil)

	var created *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
		created = txn
		return nil
	})

	txn, err := d.svc.ApplyConfirmedDeposit(ctx, tx, ports.ConfirmedDeposit{
		EventID:      "803",
		Reference:    "DEP-orphan",
		Amount:       7000,
		ProviderTxID: "803",
		WalletRef:    "333333333333333",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.TransactionStatusSuccess, txn.Status)
	assert.Equal(t, walletID, txn.WalletID)
	assert.Equal(t, int64(7000), txn.Amount)
}

// ==================== Read Tests ====================

func TestLedgerService_GetBalance_WalletMissing(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(nil, nil)

	wallet, err := d.svc.GetBalance(ctx, identityID)
	assert.Nil(t, wallet)
	require.Error(t, err)
	assertAppError(t, err, "WAL_003")
}

func TestLedgerService_GetDepositStatus_NotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "DEP-missing").Return(nil, nil)

	txn, err := d.svc.GetDepositStatus(ctx, "DEP-missing")
	assert.Nil(t, txn)
	require.Error(t, err)
	assertAppError(t, err, "WAL_007")
}

func TestLedgerService_GetDepositStatus_NonDepositHidden(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "TRF-x-OUT").Return(&domain.Transaction{
		Type: domain.TransactionTypeTransferOut,
	}, nil)

	txn, err := d.svc.GetDepositStatus(ctx, "TRF-x-OUT")
	assert.Nil(t, txn)
	require.Error(t, err)
	assertAppError(t, err, "WAL_007")
}

func TestLedgerService_ListTransactions_ClampsPage(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByIdentityID(ctx, identityID).Return(&domain.Wallet{ID: walletID}, nil).Times(2)
	d.txRepo.EXPECT().ListByWallet(ctx, walletID, defaultPageSize, 0).Return([]domain.Transaction{}, nil)
	d.txRepo.EXPECT().ListByWallet(ctx, walletID, maxPageSize, 0).Return([]domain.Transaction{}, nil)

	_, err := d.svc.ListTransactions(ctx, identityID, 0, -5)
	require.NoError(t, err)
	_, err = d.svc.ListTransactions(ctx, identityID, 5000, 0)
	require.NoError(t, err)
}

func TestNewReference_Format(t *testing.T) {
	ref, err := newReference("DEP")
	require.NoError(t, err)
	parts := strings.Split(ref, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "DEP", parts[0])
	assert.Len(t, parts[1], 10)
	ref2, err := newReference("DEP")
	require.NoError(t, err)
	assert.NotEqual(t, ref, ref2)
}
