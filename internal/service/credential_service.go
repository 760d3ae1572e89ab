package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialVerifierImpl implements ports.CredentialVerifier. It is the only
// place a raw credential is inspected; everything downstream works with a
// resolved identity and a typed permission set.
type CredentialVerifierImpl struct {
	identityRepo ports.IdentityRepository
	keyRepo      ports.APIKeyRepository
	tokenSvc     ports.TokenService
	keyHasher    ports.KeyHasher
}

// NewCredentialVerifier creates a new CredentialVerifierImpl.
func NewCredentialVerifier(
	identityRepo ports.IdentityRepository,
	keyRepo ports.APIKeyRepository,
	tokenSvc ports.TokenService,
	keyHasher ports.KeyHasher,
) *CredentialVerifierImpl {
	return &CredentialVerifierImpl{
		identityRepo: identityRepo,
		keyRepo:      keyRepo,
		tokenSvc:     tokenSvc,
		keyHasher:    keyHasher,
	}
}

// Resolve validates the presented credential and returns the identity plus
// its permission set. Session tokens take priority over service keys.
func (v *CredentialVerifierImpl) Resolve(ctx context.Context, cred ports.Credential) (*domain.Identity, domain.PermissionSet, error) {
	if cred.SessionToken != "" {
		return v.resolveSession(ctx, cred.SessionToken)
	}
	if cred.ServiceKey != "" {
		return v.resolveServiceKey(ctx, cred.ServiceKey)
	}
	return nil, nil, apperror.ErrInvalidCredential()
}

// resolveSession checks token signature and expiry. A valid user session
// always carries the full permission set, scoped to the user's own wallet.
func (v *CredentialVerifierImpl) resolveSession(ctx context.Context, token string) (*domain.Identity, domain.PermissionSet, error) {
	claims, err := v.tokenSvc.Validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, apperror.ErrCredentialExpired()
		}
		return nil, nil, apperror.ErrInvalidCredential()
	}

	identity, err := v.identityRepo.GetByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lookup identity: %w", err))
	}
	if identity == nil {
		return nil, nil, apperror.ErrInvalidCredential()
	}

	return identity, domain.AllPermissions, nil
}

// resolveServiceKey digests the presented key and looks up the stored row.
// The digest comparison is constant-time; lookup misses and mismatches are
// indistinguishable to the caller.
func (v *CredentialVerifierImpl) resolveServiceKey(ctx context.Context, rawKey string) (*domain.Identity, domain.PermissionSet, error) {
	digest := v.keyHasher.Digest(rawKey)

	key, err := v.keyRepo.GetByHash(ctx, digest)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lookup api key: %w", err))
	}
	if key == nil || !v.keyHasher.Matches(rawKey, key.KeyHash) {
		return nil, nil, apperror.ErrInvalidCredential()
	}

	now := time.Now().UTC()
	if key.Revoked {
		return nil, nil, apperror.ErrCredentialRevoked()
	}
	if key.IsExpired(now) {
		return nil, nil, apperror.ErrCredentialExpired()
	}

	identity, err := v.identityRepo.GetByID(ctx, key.IdentityID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lookup key owner: %w", err))
	}
	if identity == nil {
		return nil, nil, apperror.ErrInvalidCredential()
	}

	return identity, key.Permissions, nil
}
