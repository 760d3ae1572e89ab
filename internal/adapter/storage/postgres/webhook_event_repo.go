package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository. The unique key on
// event_id is what makes event processing exactly-once.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Insert records the event witness inside the caller's transaction. A conflict
// on event_id means a concurrent or earlier delivery already won; the caller
// must roll back everything it did for this event.
func (r *WebhookEventRepo) Insert(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) (bool, error) {
	query := `INSERT INTO webhook_events (event_id, transaction_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := tx.Exec(ctx, query, event.EventID, event.TransactionID, event.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get fetches the witness row for an event id, nil when absent.
func (r *WebhookEventRepo) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT event_id, transaction_id, processed_at FROM webhook_events WHERE event_id = $1`

	e := &domain.WebhookEvent{}
	err := r.pool.QueryRow(ctx, query, eventID).Scan(&e.EventID, &e.TransactionID, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}
