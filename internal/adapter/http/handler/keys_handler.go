package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeysHandler handles API key lifecycle endpoints. Key management is a
// session-only surface: a service key can never mint or revoke keys.
type KeysHandler struct {
	keySvc ports.APIKeyService
}

// NewKeysHandler creates a new KeysHandler.
func NewKeysHandler(keySvc ports.APIKeyService) *KeysHandler {
	return &KeysHandler{keySvc: keySvc}
}

// Create handles POST /api/v1/keys.
func (h *KeysHandler) Create(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	created, err := h.keySvc.Create(c.Request.Context(), identityID, req.Name,
		domain.PermissionSetFromStrings(req.Permissions), req.Expiry)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToCreatedKeyResponse(created))
}

// Rollover handles POST /api/v1/keys/:id/rollover.
func (h *KeysHandler) Rollover(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrKeyNotFound())
		return
	}

	created, err := h.keySvc.Rollover(c.Request.Context(), identityID, keyID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToCreatedKeyResponse(created))
}

// List handles GET /api/v1/keys.
func (h *KeysHandler) List(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	keys, err := h.keySvc.List(c.Request.Context(), identityID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.KeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, dto.ToKeyResponse(&keys[i]))
	}

	response.OK(c, out)
}

// Revoke handles DELETE /api/v1/keys/:id.
func (h *KeysHandler) Revoke(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrKeyNotFound())
		return
	}

	if err := h.keySvc.Revoke(c.Request.Context(), identityID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"revoked": true})
}
