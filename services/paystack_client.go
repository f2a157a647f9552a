// services/paystack_client.go
package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"kenya-earn/logging"

	"go.uber.org/zap"
)

// PaymentGateway is the hosted checkout provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

type PaystackClient struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	MaxRetries  int
	Backoff     time.Duration
	Client      *http.Client
}

func NewPaystackClient(baseURL, secretKey, callbackURL string, timeout time.Duration, maxRetries int) *PaystackClient {
	return &PaystackClient{
		BaseURL:     baseURL,
		SecretKey:   secretKey,
		CallbackURL: callbackURL,
		MaxRetries:  maxRetries,
		Backoff:     500 * time.Millisecond,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// InitializeRequest starts a hosted checkout. Amount is in subunits (cents).
type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResult is the provider's view of a charge. Amount is in subunits.
type VerifyResult struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// errProviderStatus marks a non-retryable answer from the provider.
var errProviderStatus = errors.New("paystack rejected the request")

// Initialize calls /transaction/initialize
func (c *PaystackClient) Initialize(ctx context.Context, in InitializeRequest) (*InitializeResult, error) {
	if in.CallbackURL == "" {
		in.CallbackURL = c.CallbackURL
	}
	jsonData, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var out InitializeResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", jsonData, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify calls /transaction/verify/:reference
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends the request, retrying transport errors and 5xx answers with
// exponential backoff. A negative envelope status is not retried.
func (c *PaystackClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	backoff := c.Backoff
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Logger.Warn("retrying paystack call",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		retry, err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (c *PaystackClient) once(ctx context.Context, method, path string, body []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("failed to call paystack: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return true, fmt.Errorf("failed to read paystack response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return true, fmt.Errorf("paystack %s returned %d", path, resp.StatusCode)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("failed to decode paystack response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Status {
		return false, fmt.Errorf("%w: %d %s", errProviderStatus, resp.StatusCode, env.Message)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("failed to decode paystack data: %w", err)
	}
	return false, nil
}

// VerifySignature checks the x-paystack-signature header: hex HMAC-SHA512 of
// the raw body keyed with the secret key.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign produces the signature Paystack would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
