package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// HMACSignatureService implements ports.SignatureVerifier using HMAC-SHA512,
// matching the provider's webhook signing scheme.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA512 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA512 of payload using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks if signature matches HMAC-SHA512(secret, payload).
// Uses constant-time comparison to prevent timing attacks.
func (s *HMACSignatureService) Verify(secret string, payload []byte, signature string) bool {
	expected := s.Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
