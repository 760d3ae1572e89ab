package handler

import (
	"strconv"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles balance, deposit and transfer endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	wallet, err := h.ledgerSvc.GetBalance(c.Request.Context(), identityID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletNumber: wallet.WalletNumber,
		Balance:      wallet.Balance,
		Currency:     wallet.Currency,
	})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.ledgerSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		IdentityID:       identityID,
		DestWalletNumber: req.DestWalletNumber,
		Amount:           req.Amount,
		Permissions:      permissionsFromCtx(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{
		TransferID: result.TransferID.String(),
		Outgoing:   dto.ToTransactionResponse(result.Outgoing),
		Incoming:   dto.ToTransactionResponse(result.Incoming),
	})
}

// InitiateDeposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) InitiateDeposit(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var email string
	if v, exists := c.Get(middleware.CtxIdentity); exists {
		if identity, ok := v.(*domain.Identity); ok {
			email = identity.Email
		}
	}

	intent, err := h.ledgerSvc.InitiateDeposit(c.Request.Context(), ports.DepositRequest{
		IdentityID:  identityID,
		Email:       email,
		Amount:      req.Amount,
		Permissions: permissionsFromCtx(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositIntentResponse{
		Reference:        intent.Reference,
		AuthorizationURL: intent.AuthorizationURL,
	})
}

// GetDepositStatus handles GET /api/v1/wallet/deposit/:reference.
func (h *WalletHandler) GetDepositStatus(c *gin.Context) {
	reference := c.Param("reference")

	txn, err := h.ledgerSvc.GetDepositStatus(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToTransactionResponse(txn))
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	identityID, ok := identityFromCtx(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidCredential())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.ledgerSvc.ListTransactions(c.Request.Context(), identityID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.TransactionListResponse{
		Items:  make([]dto.TransactionResponse, 0, len(items)),
		Limit:  limit,
		Offset: offset,
	}
	for i := range items {
		resp.Items = append(resp.Items, dto.ToTransactionResponse(&items[i]))
	}

	response.OK(c, resp)
}

func identityFromCtx(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxIdentityID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func permissionsFromCtx(c *gin.Context) domain.PermissionSet {
	if v, ok := c.Get(middleware.CtxPermissions); ok {
		if perms, ok := v.(domain.PermissionSet); ok {
			return perms
		}
	}
	return nil
}
