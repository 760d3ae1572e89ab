package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const dedupTTL = 24 * time.Hour

// providerPayload mirrors the provider's webhook body.
type providerPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
		Metadata  struct {
			WalletNumber string `json:"wallet_number"`
		} `json:"metadata"`
	} `json:"data"`
}

// WebhookGateImpl implements ports.WebhookGate. Authenticity is a keyed
// digest over the raw body; idempotency is a Redis fast path backed by a
// durable witness row that commits in the same transaction as the credit.
type WebhookGateImpl struct {
	sigVerifier   ports.SignatureVerifier
	webhookSecret string
	dedupCache    ports.EventDedupCache
	eventRepo     ports.WebhookEventRepository
	ledger        ports.LedgerService
	transactor    ports.DBTransactor
	maxRetries    int
	log           zerolog.Logger
}

// NewWebhookGate creates a new WebhookGateImpl.
func NewWebhookGate(
	sigVerifier ports.SignatureVerifier,
	webhookSecret string,
	dedupCache ports.EventDedupCache,
	eventRepo ports.WebhookEventRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	maxRetries int,
	log zerolog.Logger,
) *WebhookGateImpl {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &WebhookGateImpl{
		sigVerifier:   sigVerifier,
		webhookSecret: webhookSecret,
		dedupCache:    dedupCache,
		eventRepo:     eventRepo,
		ledger:        ledger,
		transactor:    transactor,
		maxRetries:    maxRetries,
		log:           log,
	}
}

// Handle verifies and applies one provider notification. A nil return means
// the delivery is acknowledged: applied, a duplicate, an event type we
// ignore, or a business outcome redelivery cannot change. Once the signature
// verifies, only infrastructure faults return an error and keep the delivery
// open for retry.
func (g *WebhookGateImpl) Handle(ctx context.Context, rawBody []byte, signatureHeader string) error {
	if !g.sigVerifier.Verify(g.webhookSecret, rawBody, signatureHeader) {
		g.log.Warn().Msg("webhook rejected: invalid signature")
		return apperror.ErrInvalidWebhookSignature()
	}

	var payload providerPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		// Authentic but unparseable. Redelivery would not help.
		g.log.Error().Err(err).Msg("webhook body unparseable, dropping")
		return nil
	}

	event := g.toProviderEvent(payload)
	if !event.IsChargeSuccess() {
		g.log.Debug().
			Str("event", event.EventType).
			Str("status", event.Status).
			Msg("ignoring non-settlement webhook event")
		return nil
	}

	// Fast path: Redis remembers recently applied events. Advisory only;
	// the witness row below is the authority.
	seen, err := g.dedupCache.Seen(ctx, event.EventID)
	if err != nil {
		g.log.Warn().Err(err).Str("event_id", event.EventID).Msg("dedup cache check failed, falling through to DB")
	}
	if seen {
		g.log.Debug().Str("event_id", event.EventID).Msg("webhook replay short-circuited by cache")
		return nil
	}

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		applied, err := g.applyOnce(ctx, event)
		if errors.Is(err, ports.ErrVersionConflict) {
			g.log.Debug().
				Int("attempt", attempt).
				Str("event_id", event.EventID).
				Msg("deposit lost version race, retrying")
			continue
		}
		if err != nil {
			if isRedeliverable(err) {
				return err
			}
			// Authentic event the ledger cannot act on, e.g. a reference
			// with no row and no known wallet in the metadata. Redelivery
			// would hit the same outcome, so acknowledge and log.
			g.log.Error().Err(err).
				Str("event_id", event.EventID).
				Str("reference", event.Reference).
				Msg("webhook event not applied, acknowledging")
			return nil
		}
		if applied {
			if cacheErr := g.dedupCache.Mark(ctx, event.EventID, dedupTTL); cacheErr != nil {
				g.log.Warn().Err(cacheErr).Str("event_id", event.EventID).Msg("failed to mark event in dedup cache")
			}
		}
		return nil
	}
	// Retry budget exhausted. Acknowledge anyway: the PENDING row is still
	// in place and the reconciliation sweep settles it against the provider.
	g.log.Error().
		Str("event_id", event.EventID).
		Str("reference", event.Reference).
		Msg("deposit application kept losing version races, deferring to reconciliation")
	return nil
}

// isRedeliverable reports whether an apply failure can be cured by the
// provider delivering the event again. Only infrastructure faults qualify;
// business outcomes are final for this delivery.
func isRedeliverable(err error) bool {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == "SYS_001" || appErr.Code == "SYS_002"
	}
	return true
}

// applyOnce runs one attempt: credit the deposit and record the witness row
// in a single transaction. Returns false when the event was already applied.
func (g *WebhookGateImpl) applyOnce(ctx context.Context, event domain.ProviderEvent) (bool, error) {
	dbTx, err := g.transactor.Begin(ctx)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := g.ledger.ApplyConfirmedDeposit(ctx, dbTx, ports.ConfirmedDeposit{
		EventID:      event.EventID,
		Reference:    event.Reference,
		Amount:       event.Amount,
		ProviderTxID: event.EventID,
		WalletRef:    event.WalletRef,
	})
	if err != nil {
		return false, err
	}

	inserted, err := g.eventRepo.Insert(ctx, dbTx, &domain.WebhookEvent{
		EventID:       event.EventID,
		TransactionID: txn.ID,
		ProcessedAt:   time.Now().UTC(),
	})
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("record event witness: %w", err))
	}
	if !inserted {
		// Replay. The rollback discards the duplicate credit.
		g.log.Info().Str("event_id", event.EventID).Msg("webhook replay detected by witness row")
		return false, nil
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	g.log.Info().
		Str("event_id", event.EventID).
		Str("reference", event.Reference).
		Int64("amount", event.Amount).
		Msg("webhook event applied")
	return true, nil
}

// toProviderEvent normalizes the raw payload. The provider's numeric event id
// doubles as its transaction id, which keeps webhook dedup and reconciliation
// dedup keyed the same way.
func (g *WebhookGateImpl) toProviderEvent(payload providerPayload) domain.ProviderEvent {
	eventID := strconv.FormatInt(payload.Data.ID, 10)
	if payload.Data.ID == 0 {
		eventID = payload.Data.Reference
	}
	return domain.ProviderEvent{
		EventID:   eventID,
		EventType: payload.Event,
		Reference: payload.Data.Reference,
		Amount:    payload.Data.Amount,
		Status:    payload.Data.Status,
		WalletRef: payload.Data.Metadata.WalletNumber,
	}
}
