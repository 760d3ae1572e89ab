package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authedContext(w *httptest.ResponseRecorder, identity *domain.Identity, perms domain.PermissionSet) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.CtxIdentityID, identity.ID)
	c.Set(middleware.CtxIdentity, identity)
	c.Set(middleware.CtxPermissions, perms)
	return c
}

func newIdentity() *domain.Identity {
	return &domain.Identity{
		ID:    uuid.New(),
		Email: "ada@example.com",
		Name:  "ada",
	}
}

// --- Auth Handler Tests ---

func TestLogin_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockIdP := mocks.NewMockIdentityProvider(ctrl)
	mockTokens := mocks.NewMockTokenService(ctrl)
	h := NewAuthHandler(mockIdP, mockTokens)

	identity := newIdentity()
	expiry := time.Now().Add(time.Hour)

	mockIdP.EXPECT().
		Authenticate(gomock.Any(), "ada@example.com", "hunter2hunter2").
		Return(identity, nil)
	mockTokens.EXPECT().
		Generate(identity.ID, identity.Email).
		Return("tok-abc", expiry, nil)

	body, _ := json.Marshal(dto.LoginRequest{Email: "ada@example.com", Secret: "hunter2hunter2"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "tok-abc", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

func TestLogin_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewAuthHandler(mocks.NewMockIdentityProvider(ctrl), mocks.NewMockTokenService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte("{}")))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_BadCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockIdP := mocks.NewMockIdentityProvider(ctrl)
	h := NewAuthHandler(mockIdP, mocks.NewMockTokenService(ctrl))

	mockIdP.EXPECT().
		Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidCredential())

	body, _ := json.Marshal(dto.LoginRequest{Email: "ada@example.com", Secret: "wrongsecret1"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_001")
}

// --- Wallet Handler Tests ---

func TestGetBalance_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	identity := newIdentity()
	mockLedger.EXPECT().
		GetBalance(gomock.Any(), identity.ID).
		Return(&domain.Wallet{
			WalletNumber: "900123456789012",
			Balance:      5000,
			Currency:     "NGN",
		}, nil)

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/wallet/balance", nil)

	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "900123456789012", data["wallet_number"])
	assert.Equal(t, float64(5000), data["balance"])
	assert.Equal(t, "NGN", data["currency"])
}

func TestTransfer_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	identity := newIdentity()
	transferID := uuid.New()
	now := time.Now().UTC()

	mockLedger.EXPECT().
		Transfer(gomock.Any(), ports.TransferRequest{
			IdentityID:       identity.ID,
			DestWalletNumber: "900987654321098",
			Amount:           2000,
			Permissions:      domain.AllPermissions,
		}).
		Return(&ports.TransferResult{
			TransferID: transferID,
			Outgoing: &domain.Transaction{
				ID: uuid.New(), Type: domain.TransactionTypeTransferOut,
				Amount: 2000, Status: domain.TransactionStatusSuccess, CreatedAt: now,
			},
			Incoming: &domain.Transaction{
				ID: uuid.New(), Type: domain.TransactionTypeTransferIn,
				Amount: 2000, Status: domain.TransactionStatusSuccess, CreatedAt: now,
			},
		}, nil)

	body, _ := json.Marshal(dto.TransferRequest{DestWalletNumber: "900987654321098", Amount: 2000})

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Transfer(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), transferID.String())
	assert.Contains(t, w.Body.String(), "TRANSFER_OUT")
	assert.Contains(t, w.Body.String(), "TRANSFER_IN")
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	identity := newIdentity()
	mockLedger.EXPECT().
		Transfer(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds())

	body, _ := json.Marshal(dto.TransferRequest{DestWalletNumber: "900987654321098", Amount: 999999})

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Transfer(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "WAL_001")
}

func TestTransfer_MalformedWalletNumber(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockLedgerService(ctrl))

	body, _ := json.Marshal(dto.TransferRequest{DestWalletNumber: "not-a-number", Amount: 500})

	w := httptest.NewRecorder()
	c := authedContext(w, newIdentity(), domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Transfer(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiateDeposit_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	identity := newIdentity()
	mockLedger.EXPECT().
		InitiateDeposit(gomock.Any(), ports.DepositRequest{
			IdentityID:  identity.ID,
			Email:       identity.Email,
			Amount:      10000,
			Permissions: domain.AllPermissions,
		}).
		Return(&ports.DepositIntent{
			Reference:        "DEP-abc123def4-1756500000000",
			AuthorizationURL: "https://paystack.co/checkout/DEP-abc123def4-1756500000000",
		}, nil)

	body, _ := json.Marshal(dto.DepositRequest{Amount: 10000})

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposit", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.InitiateDeposit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "authorization_url")
}

func TestGetDepositStatus_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	mockLedger.EXPECT().
		GetDepositStatus(gomock.Any(), "DEP-unknown-0").
		Return(nil, apperror.ErrTransactionNotFound())

	w := httptest.NewRecorder()
	c := authedContext(w, newIdentity(), domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/wallet/deposit/DEP-unknown-0", nil)
	c.Params = gin.Params{{Key: "reference", Value: "DEP-unknown-0"}}

	h.GetDepositStatus(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "WAL_007")
}

func TestListTransactions_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockLedger := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mockLedger)

	identity := newIdentity()
	mockLedger.EXPECT().
		ListTransactions(gomock.Any(), identity.ID, 10, 5).
		Return([]domain.Transaction{
			{ID: uuid.New(), Type: domain.TransactionTypeDeposit, Amount: 100, Status: domain.TransactionStatusSuccess},
		}, nil)

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=10&offset=5", nil)

	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DEPOSIT")
}

// --- Keys Handler Tests ---

func TestCreateKey_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockKeys := mocks.NewMockAPIKeyService(ctrl)
	h := NewKeysHandler(mockKeys)

	identity := newIdentity()
	created := &ports.CreatedKey{
		Key: &domain.APIKey{
			ID:          uuid.New(),
			IdentityID:  identity.ID,
			Name:        "ci-deploys",
			Permissions: domain.PermissionSet{domain.PermissionRead},
			CreatedAt:   time.Now().UTC(),
		},
		Plaintext: "sk_live_0123456789abcdef",
	}

	mockKeys.EXPECT().
		Create(gomock.Any(), identity.ID, "ci-deploys",
			domain.PermissionSet{domain.PermissionRead}, "1M").
		Return(created, nil)

	body, _ := json.Marshal(dto.CreateKeyRequest{
		Name:        "ci-deploys",
		Permissions: []string{"read"},
		Expiry:      "1M",
	})

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/keys", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "sk_live_0123456789abcdef")
}

func TestCreateKey_LimitReached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockKeys := mocks.NewMockAPIKeyService(ctrl)
	h := NewKeysHandler(mockKeys)

	identity := newIdentity()
	mockKeys.EXPECT().
		Create(gomock.Any(), identity.ID, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrKeyLimitReached(5))

	body, _ := json.Marshal(dto.CreateKeyRequest{
		Name:        "one-too-many",
		Permissions: []string{"read"},
		Expiry:      "1D",
	})

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/keys", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "KEY_001")
}

func TestListKeys_NoSecretMaterial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockKeys := mocks.NewMockAPIKeyService(ctrl)
	h := NewKeysHandler(mockKeys)

	identity := newIdentity()
	mockKeys.EXPECT().
		List(gomock.Any(), identity.ID).
		Return([]domain.APIKey{{
			ID:          uuid.New(),
			IdentityID:  identity.ID,
			Name:        "ci-deploys",
			KeyHash:     "a-digest-that-must-never-leak",
			Permissions: domain.PermissionSet{domain.PermissionRead},
			CreatedAt:   time.Now().UTC(),
		}}, nil)

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ci-deploys")
	assert.NotContains(t, w.Body.String(), "a-digest-that-must-never-leak")
}

func TestRolloverKey_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockKeys := mocks.NewMockAPIKeyService(ctrl)
	h := NewKeysHandler(mockKeys)

	identity := newIdentity()
	keyID := uuid.New()
	mockKeys.EXPECT().
		Rollover(gomock.Any(), identity.ID, keyID).
		Return(nil, apperror.ErrKeyNotFound())

	w := httptest.NewRecorder()
	c := authedContext(w, identity, domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/keys/"+keyID.String()+"/rollover", nil)
	c.Params = gin.Params{{Key: "id", Value: keyID.String()}}

	h.Rollover(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "KEY_004")
}

func TestRevokeKey_MalformedID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewKeysHandler(mocks.NewMockAPIKeyService(ctrl))

	w := httptest.NewRecorder()
	c := authedContext(w, newIdentity(), domain.AllPermissions)
	c.Request = httptest.NewRequest(http.MethodDelete, "/api/v1/keys/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.Revoke(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Webhook Handler Tests ---

func TestWebhookReceive_Acked(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGate := mocks.NewMockWebhookGate(ctrl)
	h := NewWebhookHandler(mockGate)

	rawBody := []byte(`{"event":"charge.success"}`)
	mockGate.EXPECT().
		Handle(gomock.Any(), rawBody, "sig-hex").
		Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/provider", bytes.NewReader(rawBody))
	c.Request.Header.Set(HeaderProviderSignature, "sig-hex")

	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookReceive_BadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGate := mocks.NewMockWebhookGate(ctrl)
	h := NewWebhookHandler(mockGate)

	mockGate.EXPECT().
		Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(apperror.ErrInvalidWebhookSignature())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/provider", bytes.NewReader([]byte("{}")))
	c.Request.Header.Set(HeaderProviderSignature, "forged")

	h.Receive(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SEC_001")
}

// --- Health Handler ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(_ context.Context) error { return s.err }
func (s stubChecker) Name() string                 { return s.name }

func TestHealthCheck_AllHealthy(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestHealthCheck_Degraded(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck(
		stubChecker{name: "postgresql"},
		stubChecker{name: "redis", err: errors.New("connection refused")},
	))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
