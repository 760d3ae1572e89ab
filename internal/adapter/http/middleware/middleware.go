package middleware

import (
	"net/http"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Header carrying a service key credential
	HeaderAPIKey = "X-API-Key"

	// Context keys
	CtxIdentityID     = "identity_id"
	CtxIdentity       = "identity"
	CtxPermissions    = "permissions"
	CtxCredentialKind = "credential_kind"

	// Credential kinds
	CredentialKindSession = "session"
	CredentialKindKey     = "key"
)

// Authenticate resolves the presented credential, either a bearer session
// token or a service key, and stores the identity and its permission set on
// the request context. When both are presented the session token wins.
func Authenticate(verifier ports.CredentialVerifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := ports.Credential{
			ServiceKey: c.GetHeader(HeaderAPIKey),
		}
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			cred.SessionToken = strings.TrimPrefix(auth, "Bearer ")
		}

		if cred.SessionToken == "" && cred.ServiceKey == "" {
			response.Error(c, apperror.ErrInvalidCredential())
			c.Abort()
			return
		}

		identity, perms, err := verifier.Resolve(c.Request.Context(), cred)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		kind := CredentialKindKey
		if cred.SessionToken != "" {
			kind = CredentialKindSession
		}

		c.Set(CtxIdentityID, identity.ID)
		c.Set(CtxIdentity, identity)
		c.Set(CtxPermissions, perms)
		c.Set(CtxCredentialKind, kind)
		c.Next()
	}
}

// RequireSession rejects service-key credentials. Key lifecycle routes are
// reachable only through a logged-in session, so a leaked key can never mint
// its own replacement.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxCredentialKind) != CredentialKindSession {
			response.Error(c, apperror.ErrPermissionDenied("key management"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission rejects credentials that do not carry the permission.
// Runs after Authenticate; services re-check on their own inputs as well.
func RequirePermission(perm domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxPermissions)
		if !ok {
			response.Error(c, apperror.ErrInvalidCredential())
			c.Abort()
			return
		}
		perms, ok := v.(domain.PermissionSet)
		if !ok || !perms.Has(perm) {
			response.Error(c, apperror.ErrPermissionDenied(string(perm)))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
