package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdentityRepo implements ports.IdentityRepository.
type IdentityRepo struct {
	pool Pool
}

// NewIdentityRepo creates a new IdentityRepo.
func NewIdentityRepo(pool Pool) *IdentityRepo {
	return &IdentityRepo{pool: pool}
}

// Create inserts a new identity.
func (r *IdentityRepo) Create(ctx context.Context, identity *domain.Identity) error {
	query := `INSERT INTO identities (id, email, name, credential_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		identity.ID, identity.Email, identity.Name, identity.CredentialHash, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID fetches an identity by its UUID.
func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	query := `SELECT id, email, name, credential_hash, created_at
		FROM identities WHERE id = $1`

	i := &domain.Identity{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&i.ID, &i.Email, &i.Name, &i.CredentialHash, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by id: %w", err)
	}
	return i, nil
}

// GetByEmail fetches an identity by email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `SELECT id, email, name, credential_hash, created_at
		FROM identities WHERE email = $1`

	i := &domain.Identity{}
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&i.ID, &i.Email, &i.Name, &i.CredentialHash, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	return i, nil
}
