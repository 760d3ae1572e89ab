package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository. Permissions are stored as a
// JSONB array; rows are never deleted.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

const apiKeyColumns = `id, identity_id, name, key_hash, permissions, expires_at, revoked, created_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []byte
	err := row.Scan(
		&k.ID, &k.IdentityID, &k.Name, &k.KeyHash,
		&perms, &k.ExpiresAt, &k.Revoked, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(perms, &raw); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	k.Permissions = domain.PermissionSetFromStrings(raw)
	return k, nil
}

// Create inserts a new API key row.
func (r *APIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	perms, err := json.Marshal(key.Permissions.Strings())
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	query := `INSERT INTO api_keys (id, identity_id, name, key_hash, permissions, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, query,
		key.ID, key.IdentityID, key.Name, key.KeyHash,
		perms, key.ExpiresAt, key.Revoked, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// CreateTx inserts a new API key row inside the caller's transaction.
func (r *APIKeyRepo) CreateTx(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	perms, err := json.Marshal(key.Permissions.Strings())
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	query := `INSERT INTO api_keys (id, identity_id, name, key_hash, permissions, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, query,
		key.ID, key.IdentityID, key.Name, key.KeyHash,
		perms, key.ExpiresAt, key.Revoked, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key in tx: %w", err)
	}
	return nil
}

// GetByID fetches a key by its UUID.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	k, err := scanAPIKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get api key by id: %w", err)
	}
	return k, nil
}

// GetByHash fetches a key by its stored digest.
func (r *APIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	k, err := scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}

// ListByIdentity returns every key the identity has issued, newest first.
func (r *APIKeyRepo) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE identity_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []domain.APIKey
	for rows.Next() {
		k := domain.APIKey{}
		var perms []byte
		err := rows.Scan(
			&k.ID, &k.IdentityID, &k.Name, &k.KeyHash,
			&perms, &k.ExpiresAt, &k.Revoked, &k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		var raw []string
		if err := json.Unmarshal(perms, &raw); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
		k.Permissions = domain.PermissionSetFromStrings(raw)
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return out, nil
}

// CountActive counts keys that are neither revoked nor expired at now.
func (r *APIKeyRepo) CountActive(ctx context.Context, identityID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys
		WHERE identity_id = $1 AND revoked = FALSE AND (expires_at IS NULL OR expires_at > $2)`

	var count int
	if err := r.pool.QueryRow(ctx, query, identityID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active api keys: %w", err)
	}
	return count, nil
}

// Revoke flips the terminal revoked flag.
func (r *APIKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET revoked = TRUE WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

// RevokeTx flips the revoked flag inside the caller's transaction.
func (r *APIKeyRepo) RevokeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE api_keys SET revoked = TRUE WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke api key in tx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}
