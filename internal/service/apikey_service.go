package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const keyPrefix = "sk_live_"

// APIKeyServiceImpl implements ports.APIKeyService. Key rows are append-only:
// revocation flips a terminal flag and nothing is ever deleted, so the audit
// trail of issued credentials stays complete.
type APIKeyServiceImpl struct {
	keyRepo    ports.APIKeyRepository
	transactor ports.DBTransactor
	keyHasher  ports.KeyHasher
	maxActive  int
	log        zerolog.Logger
}

// NewAPIKeyService creates a new APIKeyServiceImpl.
func NewAPIKeyService(
	keyRepo ports.APIKeyRepository,
	transactor ports.DBTransactor,
	keyHasher ports.KeyHasher,
	maxActive int,
	log zerolog.Logger,
) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{
		keyRepo:    keyRepo,
		transactor: transactor,
		keyHasher:  keyHasher,
		maxActive:  maxActive,
		log:        log,
	}
}

// Create issues a new API key. The plaintext secret is returned exactly once;
// only its digest is stored.
func (s *APIKeyServiceImpl) Create(ctx context.Context, identityID uuid.UUID, name string, perms domain.PermissionSet, expiry string) (*ports.CreatedKey, error) {
	if len(perms) == 0 {
		return nil, apperror.Validation("at least one permission is required")
	}
	for _, p := range perms {
		if !domain.AllPermissions.Has(p) {
			return nil, apperror.ErrInvalidPermission(string(p))
		}
	}

	now := time.Now().UTC()
	expiresAt, err := parseExpiry(expiry, now)
	if err != nil {
		return nil, apperror.ErrInvalidExpiry()
	}

	active, err := s.keyRepo.CountActive(ctx, identityID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count active keys: %w", err))
	}
	if active >= s.maxActive {
		return nil, apperror.ErrKeyLimitReached(s.maxActive)
	}

	plaintext, err := generateKeySecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate key material: %w", err))
	}

	key := &domain.APIKey{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Name:        name,
		KeyHash:     s.keyHasher.Digest(plaintext),
		Permissions: perms,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store api key: %w", err))
	}

	s.log.Info().
		Str("key_id", key.ID.String()).
		Str("identity_id", identityID.String()).
		Strs("permissions", perms.Strings()).
		Msg("api key created")

	return &ports.CreatedKey{Key: key, Plaintext: plaintext}, nil
}

// Rollover atomically revokes an existing key and issues a replacement with
// the same name, permissions and expiry. The old key stops working the moment
// the transaction commits.
func (s *APIKeyServiceImpl) Rollover(ctx context.Context, identityID, keyID uuid.UUID) (*ports.CreatedKey, error) {
	old, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load api key: %w", err))
	}
	if old == nil || old.IdentityID != identityID || old.Revoked {
		return nil, apperror.ErrKeyNotFound()
	}

	plaintext, err := generateKeySecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate key material: %w", err))
	}

	now := time.Now().UTC()
	replacement := &domain.APIKey{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Name:        old.Name,
		KeyHash:     s.keyHasher.Digest(plaintext),
		Permissions: old.Permissions,
		ExpiresAt:   old.ExpiresAt,
		CreatedAt:   now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.keyRepo.RevokeTx(ctx, dbTx, old.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("revoke old key: %w", err))
	}
	if err := s.keyRepo.CreateTx(ctx, dbTx, replacement); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store replacement key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("old_key_id", old.ID.String()).
		Str("new_key_id", replacement.ID.String()).
		Str("identity_id", identityID.String()).
		Msg("api key rolled over")

	return &ports.CreatedKey{Key: replacement, Plaintext: plaintext}, nil
}

// List returns every key the identity has ever issued, revoked ones included.
// Plaintext secrets are not stored, so none are returned.
func (s *APIKeyServiceImpl) List(ctx context.Context, identityID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list api keys: %w", err))
	}
	return keys, nil
}

// Revoke marks a key revoked. Revoking an already-revoked key is a no-op.
func (s *APIKeyServiceImpl) Revoke(ctx context.Context, identityID, keyID uuid.UUID) error {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("load api key: %w", err))
	}
	if key == nil || key.IdentityID != identityID {
		return apperror.ErrKeyNotFound()
	}
	if key.Revoked {
		return nil
	}

	if err := s.keyRepo.Revoke(ctx, keyID); err != nil {
		return apperror.InternalError(fmt.Errorf("revoke api key: %w", err))
	}

	s.log.Info().
		Str("key_id", keyID.String()).
		Str("identity_id", identityID.String()).
		Msg("api key revoked")
	return nil
}

// parseExpiry converts a lifetime code into an absolute expiry timestamp.
func parseExpiry(expiry string, now time.Time) (*time.Time, error) {
	var t time.Time
	switch strings.ToUpper(expiry) {
	case "1H":
		t = now.Add(time.Hour)
	case "1D":
		t = now.AddDate(0, 0, 1)
	case "1M":
		t = now.AddDate(0, 1, 0)
	case "1Y":
		t = now.AddDate(1, 0, 0)
	default:
		return nil, fmt.Errorf("unknown expiry code %q", expiry)
	}
	return &t, nil
}

// generateKeySecret produces the plaintext key: a recognizable prefix plus
// 256 bits of randomness.
func generateKeySecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(b), nil
}
