// Package gateway implements the HTTP client for the card payment
// processor. Transport failures are reported distinctly from
// authoritative gateway answers so callers can avoid mutating payment
// state on an unknown outcome.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smiict/course-api/pkg/config"
)

// Session is the result of initializing a transaction: the URL the
// customer is redirected to and the reference tracking the attempt.
type Session struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the gateway's authoritative answer for a reference.
type VerifyResult struct {
	Succeeded bool
	RawStatus string
	AmountMinor int64
	PaidAt    *time.Time
}

// TransportError wraps network and decode failures where the gateway's
// answer is unknown. Callers must not transition payment state on it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gateway unreachable: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to the payment processor's REST API.
type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	callback   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		currency:   cfg.Currency,
		callback:   cfg.CallbackURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type initializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Reference   string                 `json:"reference"`
	Currency    string                 `json:"currency,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
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
		Status string `json:"status"`
		Amount int64  `json:"amount"`
		PaidAt string `json:"paid_at"`
	} `json:"data"`
}

// CreateSession initializes a transaction. Amount is in minor currency
// units.
func (c *Client) CreateSession(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]interface{}) (*Session, error) {
	payload := initializeRequest{
		Email:       email,
		Amount:      amountMinor,
		Reference:   reference,
		Currency:    c.currency,
		CallbackURL: c.callback,
		Metadata:    metadata,
	}

	var out initializeResponse
	if err := c.post(ctx, "/transaction/initialize", payload, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("gateway rejected initialization: %s", out.Message)
	}

	return &Session{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        out.Data.Reference,
	}, nil
}

// ConfirmTransaction asks the gateway for the final status of a
// reference. Only the gateway's answer decides success.
func (c *Client) ConfirmTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	var out verifyResponse
	if err := c.get(ctx, "/transaction/verify/"+reference, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("gateway rejected verification: %s", out.Message)
	}

	result := &VerifyResult{
		Succeeded:   strings.EqualFold(out.Data.Status, "success"),
		RawStatus:   out.Data.Status,
		AmountMinor: out.Data.Amount,
	}
	if out.Data.PaidAt != "" {
		if ts, err := time.Parse(time.RFC3339, out.Data.PaidAt); err == nil {
			result.PaidAt = &ts
		}
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransportError{Err: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
