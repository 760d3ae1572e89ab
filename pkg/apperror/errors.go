package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Authentication & Authorization (AUTH) ----

func ErrInvalidCredential() *AppError {
	return New("AUTH_001", "Invalid or unknown credential", http.StatusUnauthorized)
}

func ErrCredentialExpired() *AppError {
	return New("AUTH_002", "Credential has expired", http.StatusUnauthorized)
}

func ErrCredentialRevoked() *AppError {
	return New("AUTH_003", "Credential has been revoked", http.StatusUnauthorized)
}

func ErrPermissionDenied(permission string) *AppError {
	return New("AUTH_004", fmt.Sprintf("Credential lacks the '%s' permission", permission), http.StatusForbidden)
}

// ---- Wallet & Ledger (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New("WAL_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("WAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrWalletNotFound() *AppError {
	return New("WAL_003", "Wallet not found", http.StatusNotFound)
}

func ErrAmountTooSmall(minimum int64) *AppError {
	return New("WAL_004", fmt.Sprintf("Amount is below the minimum deposit of %d minor units", minimum), http.StatusBadRequest)
}

func ErrSelfTransfer() *AppError {
	return New("WAL_005", "Cannot transfer funds to the source wallet", http.StatusBadRequest)
}

// ErrConcurrencyConflict is surfaced only after the bounded internal retry is
// exhausted. The caller may safely retry the whole operation.
func ErrConcurrencyConflict() *AppError {
	return New("WAL_006", "Wallet is being modified concurrently, retry the operation", http.StatusConflict)
}

func ErrTransactionNotFound() *AppError {
	return New("WAL_007", "Transaction not found", http.StatusNotFound)
}

// ---- API Keys (KEY) ----

func ErrKeyLimitReached(limit int) *AppError {
	return New("KEY_001", fmt.Sprintf("Maximum of %d active API keys allowed", limit), http.StatusUnprocessableEntity)
}

func ErrInvalidExpiry() *AppError {
	return New("KEY_002", "Invalid expiry format, use 1H, 1D, 1M or 1Y", http.StatusBadRequest)
}

func ErrInvalidPermission(permission string) *AppError {
	return New("KEY_003", fmt.Sprintf("Unknown permission '%s'", permission), http.StatusBadRequest)
}

func ErrKeyNotFound() *AppError {
	return New("KEY_004", "API key not found", http.StatusNotFound)
}

// ---- Webhook Security (SEC) ----

func ErrInvalidWebhookSignature() *AppError {
	return New("SEC_001", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- System & Infrastructure (SYS) ----

func ErrProviderUnavailable(err error) *AppError {
	return Wrap("SYS_002", "Payment provider unavailable", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a WAL_002-style validation error with a precise reason.
func Validation(message string) *AppError {
	return New("WAL_002", message, http.StatusBadRequest)
}
