package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

type apiKeyTestDeps struct {
	svc        *APIKeyServiceImpl
	keyRepo    *mocks.MockAPIKeyRepository
	transactor *mocks.MockDBTransactor
	keyHasher  *mocks.MockKeyHasher
	ctrl       *gomock.Controller
}

func setupAPIKeyService(t *testing.T) *apiKeyTestDeps {
	ctrl := gomock.NewController(t)
	d := &apiKeyTestDeps{
		keyRepo:    mocks.NewMockAPIKeyRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		keyHasher:  mocks.NewMockKeyHasher(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewAPIKeyService(d.keyRepo, d.transactor, d.keyHasher, 5, zerolog.Nop())
	return d
}

func TestAPIKeyService_Create_Success(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()

	d.keyRepo.EXPECT().CountActive(ctx, identityID, gomock.Any()).Return(2, nil)
	d.keyHasher.EXPECT().Digest(gomock.Any()).DoAndReturn(func(secret string) string {
		assert.True(t, strings.HasPrefix(secret, "sk_live_"))
		return "digest-abc"
	})

	var stored *domain.APIKey
	d.keyRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, k *domain.APIKey) error {
		stored = k
		return nil
	})

	created, err := d.svc.Create(ctx, identityID, "ci-key", domain.PermissionSet{domain.PermissionRead, domain.PermissionDeposit}, "1H")
	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotNil(t, stored)

	assert.True(t, strings.HasPrefix(created.Plaintext, "sk_live_"))
	assert.Equal(t, "digest-abc", stored.KeyHash)
	assert.Equal(t, identityID, stored.IdentityID)
	assert.Equal(t, "ci-key", stored.Name)
	assert.False(t, stored.Revoked)
	require.NotNil(t, stored.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *stored.ExpiresAt, 5*time.Second)
}

func TestAPIKeyService_Create_UnknownPermission(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	created, err := d.svc.Create(context.Background(), uuid.New(), "k", domain.PermissionSet{"admin"}, "1D")
	assert.Nil(t, created)
	require.Error(t, err)
	assertAppError(t, err, "KEY_003")
}

func TestAPIKeyService_Create_NoPermissions(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	created, err := d.svc.Create(context.Background(), uuid.New(), "k", domain.PermissionSet{}, "1D")
	assert.Nil(t, created)
	require.Error(t, err)
}

func TestAPIKeyService_Create_InvalidExpiry(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	created, err := d.svc.Create(context.Background(), uuid.New(), "k", domain.PermissionSet{domain.PermissionRead}, "2W")
	assert.Nil(t, created)
	require.Error(t, err)
	assertAppError(t, err, "KEY_002")
}

func TestAPIKeyService_Create_LimitReached(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()

	d.keyRepo.EXPECT().CountActive(ctx, identityID, gomock.Any()).Return(5, nil)

	created, err := d.svc.Create(ctx, identityID, "one-too-many", domain.PermissionSet{domain.PermissionRead}, "1M")
	assert.Nil(t, created)
	require.Error(t, err)
	assertAppError(t, err, "KEY_001")
}

func TestAPIKeyService_Rollover_Success(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	oldID := uuid.New()
	tx := &mockTx{}
	expires := time.Now().UTC().Add(24 * time.Hour)

	old := &domain.APIKey{
		ID:          oldID,
		IdentityID:  identityID,
		Name:        "deploy",
		KeyHash:     "old-digest",
		Permissions: domain.PermissionSet{domain.PermissionTransfer},
		ExpiresAt:   &expires,
	}

	d.keyRepo.EXPECT().GetByID(ctx, oldID).Return(old, nil)
	d.keyHasher.EXPECT().Digest(gomock.Any()).Return("new-digest")
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.keyRepo.EXPECT().RevokeTx(ctx, tx, oldID).Return(nil)

	var replacement *domain.APIKey
	d.keyRepo.EXPECT().CreateTx(ctx, tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, k *domain.APIKey) error {
		replacement = k
		return nil
	})

	created, err := d.svc.Rollover(ctx, identityID, oldID)
	require.NoError(t, err)
	require.NotNil(t, created)
	require.NotNil(t, replacement)

	assert.NotEqual(t, oldID, replacement.ID)
	assert.Equal(t, "deploy", replacement.Name)
	assert.Equal(t, old.Permissions, replacement.Permissions)
	assert.Equal(t, old.ExpiresAt, replacement.ExpiresAt)
	assert.Equal(t, "new-digest", replacement.KeyHash)
	assert.True(t, strings.HasPrefix(created.Plaintext, "sk_live_"))
}

func TestAPIKeyService_Rollover_NotOwned(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	keyID := uuid.New()

	d.keyRepo.EXPECT().GetByID(ctx, keyID).Return(&domain.APIKey{
		ID:         keyID,
		IdentityID: uuid.New(), // someone else's
	}, nil)

	created, err := d.svc.Rollover(ctx, uuid.New(), keyID)
	assert.Nil(t, created)
	require.Error(t, err)
	assertAppError(t, err, "KEY_004")
}

func TestAPIKeyService_Rollover_RevokedKey(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	keyID := uuid.New()

	d.keyRepo.EXPECT().GetByID(ctx, keyID).Return(&domain.APIKey{
		ID:         keyID,
		IdentityID: identityID,
		Revoked:    true,
	}, nil)

	created, err := d.svc.Rollover(ctx, identityID, keyID)
	assert.Nil(t, created)
	require.Error(t, err)
	assertAppError(t, err, "KEY_004")
}

func TestAPIKeyService_Revoke_Success(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	keyID := uuid.New()

	d.keyRepo.EXPECT().GetByID(ctx, keyID).Return(&domain.APIKey{
		ID:         keyID,
		IdentityID: identityID,
	}, nil)
	d.keyRepo.EXPECT().Revoke(ctx, keyID).Return(nil)

	err := d.svc.Revoke(ctx, identityID, keyID)
	assert.NoError(t, err)
}

func TestAPIKeyService_Revoke_Idempotent(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identityID := uuid.New()
	keyID := uuid.New()

	d.keyRepo.EXPECT().GetByID(ctx, keyID).Return(&domain.APIKey{
		ID:         keyID,
		IdentityID: identityID,
		Revoked:    true,
	}, nil)
	// No Revoke call expected.

	err := d.svc.Revoke(ctx, identityID, keyID)
	assert.NoError(t, err)
}

func TestAPIKeyService_Revoke_NotFound(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	keyID := uuid.New()

	d.keyRepo.EXPECT().GetByID(ctx, keyID).Return(nil, nil)

	err := d.svc.Revoke(ctx, uuid.New(), keyID)
	require.Error(t, err)
	assertAppError(t, err, "KEY_004")
}

func TestParseExpiry_Codes(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		code string
		want time.Time
	}{
		{"1H", now.Add(time.Hour)},
		{"1D", now.AddDate(0, 0, 1)},
		{"1M", now.AddDate(0, 1, 0)},
		{"1Y", now.AddDate(1, 0, 0)},
		{"1h", now.Add(time.Hour)},
	}
	for _, tc := range cases {
		got, err := parseExpiry(tc.code, now)
		require.NoError(t, err, tc.code)
		assert.Equal(t, tc.want, *got, tc.code)
	}

	_, err := parseExpiry("", now)
	assert.Error(t, err)
	_, err = parseExpiry("7D", now)
	assert.Error(t, err)
}
