// Package provider implements the Paystack payment provider client.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const mockSecretPrefix = "sk_test_mock"

// HTTPClient allows injecting a mock HTTP client for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PaystackClient implements ports.ProviderClient against the Paystack API.
// A secret key starting with "sk_test_mock" switches the client into mock
// mode: initialize succeeds locally and verification reports in-flight, so
// the service runs end to end without provider credentials.
type PaystackClient struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  HTTPClient
	log         zerolog.Logger
}

// NewPaystackClient creates a new PaystackClient.
func NewPaystackClient(baseURL, secretKey, callbackURL string, httpClient HTTPClient, log zerolog.Logger) *PaystackClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PaystackClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  httpClient,
		log:         log,
	}
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID        int64  `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// InitializeDeposit asks the provider for a hosted payment page and returns
// its authorization URL. Amount is in minor currency units.
func (c *PaystackClient) InitializeDeposit(ctx context.Context, email string, amount int64, reference string) (string, error) {
	if c.isMock() {
		return "https://paystack.co/checkout/" + reference, nil
	}

	payload, err := json.Marshal(map[string]any{
		"email":        email,
		"amount":       amount,
		"reference":    reference,
		"callback_url": c.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal initialize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build initialize request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initialize request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("initialize returned HTTP %d", resp.StatusCode)
	}

	var parsed initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode initialize response: %w", err)
	}
	if !parsed.Status {
		return "", fmt.Errorf("provider rejected initialize: %s", parsed.Message)
	}

	return parsed.Data.AuthorizationURL, nil
}

// VerifyDeposit asks the provider for the authoritative state of a deposit.
func (c *PaystackClient) VerifyDeposit(ctx context.Context, reference string) (*ports.ProviderVerification, error) {
	if c.isMock() {
		// Mock mode never settles on its own; deposits resolve through the
		// webhook endpoint.
		return &ports.ProviderVerification{Reference: reference, Status: "pending"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned HTTP %d", resp.StatusCode)
	}

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("provider rejected verify: %s", parsed.Message)
	}

	var providerTxID string
	if parsed.Data.ID != 0 {
		providerTxID = strconv.FormatInt(parsed.Data.ID, 10)
	}
	return &ports.ProviderVerification{
		Reference:    parsed.Data.Reference,
		Amount:       parsed.Data.Amount,
		Status:       parsed.Data.Status,
		ProviderTxID: providerTxID,
	}, nil
}

func (c *PaystackClient) isMock() bool {
	return strings.HasPrefix(c.secretKey, mockSecretPrefix)
}

func (c *PaystackClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}
