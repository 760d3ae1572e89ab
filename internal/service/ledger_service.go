package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// LedgerServiceImpl implements ports.LedgerService. Balance mutations use
// optimistic concurrency: each write carries the wallet version it read, and
// a lost race restarts the whole read-check-write sequence up to maxRetries
// times before surfacing a conflict to the caller.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	provider   ports.ProviderClient
	transactor ports.DBTransactor
	maxRetries int
	minDeposit int64
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	provider ports.ProviderClient,
	transactor ports.DBTransactor,
	maxRetries int,
	minDeposit int64,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		provider:   provider,
		transactor: transactor,
		maxRetries: maxRetries,
		minDeposit: minDeposit,
		log:        log,
	}
}

// Transfer moves funds between two wallets atomically. Both ledger legs and
// both balance updates commit together or not at all.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !req.Permissions.Has(domain.PermissionTransfer) {
		return nil, apperror.ErrPermissionDenied(string(domain.PermissionTransfer))
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	source, err := s.walletRepo.GetByIdentityID(ctx, req.IdentityID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load source wallet: %w", err))
	}
	if source == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	dest, err := s.walletRepo.GetByNumber(ctx, req.DestWalletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load destination wallet: %w", err))
	}
	if dest == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if dest.ID == source.ID {
		return nil, apperror.ErrSelfTransfer()
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err := s.transferOnce(ctx, source.ID, dest.ID, req.Amount)
		if errors.Is(err, ports.ErrVersionConflict) {
			s.log.Debug().
				Int("attempt", attempt).
				Str("source_wallet", source.ID.String()).
				Msg("transfer lost version race, retrying")
			continue
		}
		return result, err
	}

	s.log.Warn().
		Str("source_wallet", source.ID.String()).
		Int("attempts", s.maxRetries).
		Msg("transfer retry budget exhausted")
	return nil, apperror.ErrConcurrencyConflict()
}

// transferOnce runs a single attempt of the transfer inside one database
// transaction. The sufficiency check reads the same versions the deltas are
// conditioned on, so a stale read can never overdraw the source.
func (s *LedgerServiceImpl) transferOnce(ctx context.Context, sourceID, destID uuid.UUID, amount int64) (*ports.TransferResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	source, err := s.walletRepo.GetByIDTx(ctx, dbTx, sourceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read source wallet: %w", err))
	}
	if source == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	dest, err := s.walletRepo.GetByIDTx(ctx, dbTx, destID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read destination wallet: %w", err))
	}
	if dest == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	if !source.CanDebit(amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.walletRepo.ApplyDelta(ctx, dbTx, source.ID, -amount, source.Version); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("debit source: %w", err))
	}
	if err := s.walletRepo.ApplyDelta(ctx, dbTx, dest.ID, amount, dest.Version); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("credit destination: %w", err))
	}

	now := time.Now().UTC()
	transferID := uuid.New()
	ref, err := newReference("TRF")
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	outgoing := &domain.Transaction{
		ID:                   uuid.New(),
		WalletID:             source.ID,
		Type:                 domain.TransactionTypeTransferOut,
		Amount:               amount,
		Reference:            ref + "-OUT",
		CounterpartyWalletID: &dest.ID,
		TransferID:           &transferID,
		Status:               domain.TransactionStatusSuccess,
		CreatedAt:            now,
		ProcessedAt:          &now,
	}
	incoming := &domain.Transaction{
		ID:                   uuid.New(),
		WalletID:             dest.ID,
		Type:                 domain.TransactionTypeTransferIn,
		Amount:               amount,
		Reference:            ref + "-IN",
		CounterpartyWalletID: &source.ID,
		TransferID:           &transferID,
		Status:               domain.TransactionStatusSuccess,
		CreatedAt:            now,
		ProcessedAt:          &now,
	}

	if err := s.txRepo.Create(ctx, dbTx, outgoing); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record outgoing leg: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, incoming); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record incoming leg: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("transfer_id", transferID.String()).
		Str("source_wallet", source.ID.String()).
		Str("dest_wallet", dest.ID.String()).
		Int64("amount", amount).
		Msg("transfer completed")

	return &ports.TransferResult{
		TransferID: transferID,
		Outgoing:   outgoing,
		Incoming:   incoming,
	}, nil
}

// InitiateDeposit creates a PENDING ledger row and asks the provider for a
// payment authorization URL. The balance is untouched until the provider
// confirms the payment through the webhook gate.
func (s *LedgerServiceImpl) InitiateDeposit(ctx context.Context, req ports.DepositRequest) (*ports.DepositIntent, error) {
	if !req.Permissions.Has(domain.PermissionDeposit) {
		return nil, apperror.ErrPermissionDenied(string(domain.PermissionDeposit))
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Amount < s.minDeposit {
		return nil, apperror.ErrAmountTooSmall(s.minDeposit)
	}

	wallet, err := s.walletRepo.GetByIdentityID(ctx, req.IdentityID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	reference, err := newReference("DEP")
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	authURL, err := s.provider.InitializeDeposit(ctx, req.Email, req.Amount, reference)
	if err != nil {
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("initialize deposit: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	pending := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    req.Amount,
		Reference: reference,
		Status:    domain.TransactionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, pending); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record pending deposit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("reference", reference).
		Str("wallet_id", wallet.ID.String()).
		Int64("amount", req.Amount).
		Msg("deposit initiated")

	return &ports.DepositIntent{
		Reference:        reference,
		AuthorizationURL: authURL,
	}, nil
}

// ApplyConfirmedDeposit credits a provider-confirmed deposit. It runs inside
// the caller's transaction so the idempotency witness recorded by the gate,
// the balance credit and the ledger row commit or abort as one unit.
func (s *LedgerServiceImpl) ApplyConfirmedDeposit(ctx context.Context, tx pgx.Tx, conf ports.ConfirmedDeposit) (*domain.Transaction, error) {
	pending, err := s.txRepo.GetByReferenceTx(ctx, tx, conf.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find pending deposit: %w", err))
	}

	if pending != nil {
		if pending.IsTerminal() {
			// Already settled. The gate's witness normally catches replays
			// before we get here.
			return pending, nil
		}
		if pending.Amount != conf.Amount {
			s.log.Warn().
				Str("reference", conf.Reference).
				Int64("initiated_amount", pending.Amount).
				Int64("confirmed_amount", conf.Amount).
				Msg("provider confirmed a different amount than initiated")
		}

		wallet, err := s.walletRepo.GetByIDTx(ctx, tx, pending.WalletID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.ErrWalletNotFound()
		}
		if err := s.walletRepo.ApplyDelta(ctx, tx, wallet.ID, conf.Amount, wallet.Version); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
		}

		extRef := conf.ProviderTxID
		if err := s.txRepo.MarkStatus(ctx, tx, pending.ID, domain.TransactionStatusSuccess, &extRef); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("settle pending deposit: %w", err))
		}

		pending.Status = domain.TransactionStatusSuccess
		pending.ExternalRef = &extRef
		now := time.Now().UTC()
		pending.ProcessedAt = &now

		s.log.Info().
			Str("reference", conf.Reference).
			Str("wallet_id", wallet.ID.String()).
			Int64("amount", conf.Amount).
			Msg("deposit settled")
		return pending, nil
	}

	// No PENDING row for this reference. The provider still confirmed the
	// money, so credit the wallet named in the event metadata.
	wallet, err := s.walletRepo.GetByNumberTx(ctx, tx, conf.WalletRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve wallet by number: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if err := s.walletRepo.ApplyDelta(ctx, tx, wallet.ID, conf.Amount, wallet.Version); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}

	now := time.Now().UTC()
	extRef := conf.ProviderTxID
	settled := &domain.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        domain.TransactionTypeDeposit,
		Amount:      conf.Amount,
		Reference:   conf.Reference,
		ExternalRef: &extRef,
		Status:      domain.TransactionStatusSuccess,
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if err := s.txRepo.Create(ctx, tx, settled); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record settled deposit: %w", err))
	}

	s.log.Info().
		Str("reference", conf.Reference).
		Str("wallet_id", wallet.ID.String()).
		Int64("amount", conf.Amount).
		Msg("deposit settled without a pending row")
	return settled, nil
}

// GetBalance returns the caller's wallet.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, identityID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}

// GetDepositStatus returns the current state of a deposit by reference.
// Read-only: polling a status never mutates the ledger.
func (s *LedgerServiceImpl) GetDepositStatus(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find deposit: %w", err))
	}
	if txn == nil || txn.Type != domain.TransactionTypeDeposit {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}

// ListTransactions returns a page of the caller's transaction history,
// newest first.
func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	wallet, err := s.walletRepo.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := s.txRepo.ListByWallet(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, nil
}

// newReference builds a ledger reference like DEP-a1b2c3d4e5-1735689600000.
func newReference(prefix string) (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%d", prefix, hex.EncodeToString(b), time.Now().UnixMilli()), nil
}
