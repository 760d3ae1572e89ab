package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const sweepBatchSize = 50

// ReconcileService settles deposits whose webhook never arrived. It polls the
// provider for stale PENDING rows and routes confirmed ones through the same
// witness-guarded apply path as the webhook gate, so a late webhook and the
// sweep can never both credit the same event.
type ReconcileService struct {
	txRepo           ports.TransactionRepository
	eventRepo        ports.WebhookEventRepository
	ledger           ports.LedgerService
	provider         ports.ProviderClient
	transactor       ports.DBTransactor
	dedupCache       ports.EventDedupCache
	pendingThreshold time.Duration
	maxRetries       int
	log              zerolog.Logger
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(
	txRepo ports.TransactionRepository,
	eventRepo ports.WebhookEventRepository,
	ledger ports.LedgerService,
	provider ports.ProviderClient,
	transactor ports.DBTransactor,
	dedupCache ports.EventDedupCache,
	pendingThreshold time.Duration,
	maxRetries int,
	log zerolog.Logger,
) *ReconcileService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &ReconcileService{
		txRepo:           txRepo,
		eventRepo:        eventRepo,
		ledger:           ledger,
		provider:         provider,
		transactor:       transactor,
		dedupCache:       dedupCache,
		pendingThreshold: pendingThreshold,
		maxRetries:       maxRetries,
		log:              log,
	}
}

// Sweep processes one batch of stale pending deposits. Individual failures
// are logged and skipped so one bad row cannot stall the rest of the batch.
func (s *ReconcileService) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.pendingThreshold)
	stale, err := s.txRepo.ListStalePendingDeposits(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list stale deposits: %w", err))
	}
	if len(stale) == 0 {
		return nil
	}

	s.log.Info().Int("count", len(stale)).Msg("reconciling stale pending deposits")

	var settled, failed int
	for i := range stale {
		pending := &stale[i]

		verification, err := s.provider.VerifyDeposit(ctx, pending.Reference)
		if err != nil {
			s.log.Warn().Err(err).Str("reference", pending.Reference).Msg("provider verify failed, will retry next sweep")
			continue
		}

		switch verification.Status {
		case "success":
			if err := s.settle(ctx, pending, verification); err != nil {
				s.log.Error().Err(err).Str("reference", pending.Reference).Msg("failed to settle reconciled deposit")
				continue
			}
			settled++
		case "failed", "abandoned":
			if err := s.markFailed(ctx, pending, verification); err != nil {
				s.log.Error().Err(err).Str("reference", pending.Reference).Msg("failed to mark deposit failed")
				continue
			}
			failed++
		default:
			// Still in flight at the provider. Leave it for a later sweep.
		}
	}

	s.log.Info().
		Int("settled", settled).
		Int("failed", failed).
		Int("scanned", len(stale)).
		Msg("reconciliation sweep finished")
	return nil
}

// settle credits a provider-confirmed deposit under the same idempotency
// witness the webhook gate uses.
func (s *ReconcileService) settle(ctx context.Context, pending *domain.Transaction, v *ports.ProviderVerification) error {
	eventID := v.ProviderTxID
	if eventID == "" {
		eventID = v.Reference
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.settleOnce(ctx, pending, v, eventID)
		if errors.Is(err, ports.ErrVersionConflict) {
			continue
		}
		return err
	}
	return apperror.ErrConcurrencyConflict()
}

func (s *ReconcileService) settleOnce(ctx context.Context, pending *domain.Transaction, v *ports.ProviderVerification, eventID string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.ledger.ApplyConfirmedDeposit(ctx, dbTx, ports.ConfirmedDeposit{
		EventID:      eventID,
		Reference:    v.Reference,
		Amount:       v.Amount,
		ProviderTxID: v.ProviderTxID,
	})
	if err != nil {
		return err
	}

	inserted, err := s.eventRepo.Insert(ctx, dbTx, &domain.WebhookEvent{
		EventID:       eventID,
		TransactionID: txn.ID,
		ProcessedAt:   time.Now().UTC(),
	})
	if err != nil {
		return apperror.InternalError(fmt.Errorf("record event witness: %w", err))
	}
	if !inserted {
		// A webhook beat the sweep to this event. Rollback discards our credit.
		s.log.Debug().Str("event_id", eventID).Msg("deposit already settled by webhook")
		return nil
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if cacheErr := s.dedupCache.Mark(ctx, eventID, dedupTTL); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("event_id", eventID).Msg("failed to mark event in dedup cache")
	}

	s.log.Info().
		Str("reference", pending.Reference).
		Int64("amount", v.Amount).
		Msg("stale deposit settled by reconciliation")
	return nil
}

// markFailed records the provider's negative verdict on a pending deposit.
func (s *ReconcileService) markFailed(ctx context.Context, pending *domain.Transaction, v *ports.ProviderVerification) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	var extRef *string
	if v.ProviderTxID != "" {
		extRef = &v.ProviderTxID
	}
	if err := s.txRepo.MarkStatus(ctx, dbTx, pending.ID, domain.TransactionStatusFailed, extRef); err != nil {
		return apperror.InternalError(fmt.Errorf("mark deposit failed: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("reference", pending.Reference).
		Str("provider_status", v.Status).
		Msg("stale deposit marked failed")
	return nil
}
