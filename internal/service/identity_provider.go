package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalIdentityProvider implements ports.IdentityProvider against the local
// identity store. The engine only sees the IdentityProvider interface, so a
// real IdP can replace this without touching the ledger.
//
// First authentication provisions the identity and its wallet in one step.
type LocalIdentityProvider struct {
	identityRepo ports.IdentityRepository
	walletRepo   ports.WalletRepository
	credHasher   ports.CredentialHasher
	currency     string
	log          zerolog.Logger
}

// NewLocalIdentityProvider creates a new LocalIdentityProvider.
func NewLocalIdentityProvider(
	identityRepo ports.IdentityRepository,
	walletRepo ports.WalletRepository,
	credHasher ports.CredentialHasher,
	currency string,
	log zerolog.Logger,
) *LocalIdentityProvider {
	return &LocalIdentityProvider{
		identityRepo: identityRepo,
		walletRepo:   walletRepo,
		credHasher:   credHasher,
		currency:     currency,
		log:          log,
	}
}

// Authenticate verifies the secret for a known email, or provisions a new
// identity and wallet on first sight of the email.
func (p *LocalIdentityProvider) Authenticate(ctx context.Context, email, secret string) (*domain.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || secret == "" {
		return nil, apperror.ErrInvalidCredential()
	}

	identity, err := p.identityRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup identity: %w", err))
	}
	if identity == nil {
		return p.provision(ctx, email, secret)
	}

	ok, err := p.credHasher.Verify(secret, identity.CredentialHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify credential: %w", err))
	}
	if !ok {
		return nil, apperror.ErrInvalidCredential()
	}
	return identity, nil
}

// provision creates the identity and its wallet.
func (p *LocalIdentityProvider) provision(ctx context.Context, email, secret string) (*domain.Identity, error) {
	hash, err := p.credHasher.Hash(secret)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash credential: %w", err))
	}

	now := time.Now().UTC()
	identity := &domain.Identity{
		ID:             uuid.New(),
		Email:          email,
		Name:           strings.SplitN(email, "@", 2)[0],
		CredentialHash: hash,
		CreatedAt:      now,
	}
	if err := p.identityRepo.Create(ctx, identity); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create identity: %w", err))
	}

	number, err := newWalletNumber()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate wallet number: %w", err))
	}
	wallet := &domain.Wallet{
		ID:           uuid.New(),
		IdentityID:   identity.ID,
		WalletNumber: number,
		Balance:      0,
		Currency:     p.currency,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.walletRepo.Create(ctx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	p.log.Info().
		Str("identity_id", identity.ID.String()).
		Str("wallet_number", wallet.WalletNumber).
		Msg("identity provisioned")
	return identity, nil
}

// newWalletNumber produces the 15-digit externally shareable wallet number.
func newWalletNumber() (string, error) {
	var sb strings.Builder
	sb.Grow(15)
	for i := 0; i < 15; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
