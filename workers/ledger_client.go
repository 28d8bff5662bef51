package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrLedgerRejected marks a permanent ledger rejection. Submissions and
// receipts carrying this error are never retried.
var ErrLedgerRejected = errors.New("ledger rejected transaction")

// Receipt statuses reported by the ledger service.
const (
	ReceiptStatusPending   = "pending"
	ReceiptStatusConfirmed = "confirmed"
	ReceiptStatusFailed    = "failed"
)

type LedgerReceipt struct {
	Status        string `json:"status"`
	Confirmations int    `json:"confirmations"`
}

// LedgerClient is the client-side boundary of the external ledger: submit a
// value transfer, then poll for its receipt until finality.
type LedgerClient interface {
	SubmitTransaction(ctx context.Context, recipient string, amount float64, token string) (string, error)
	GetReceipt(ctx context.Context, txHash string) (*LedgerReceipt, error)
}

// HTTPLedgerClient talks to the ledger gateway service over HTTP.
type HTTPLedgerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPLedgerClient(baseURL, token string) *HTTPLedgerClient {
	return &HTTPLedgerClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPLedgerClient) endpoint(parts ...string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid ledger base URL '%s': %w", c.BaseURL, err)
	}
	return base.JoinPath(parts...).String(), nil
}

// SubmitTransaction submits one value transfer and returns the transaction
// hash assigned by the ledger. A 4xx response wraps ErrLedgerRejected.
func (c *HTTPLedgerClient) SubmitTransaction(ctx context.Context, recipient string, amount float64, token string) (string, error) {
	endpoint, err := c.endpoint("api", "v1", "transactions")
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
		"token":     token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ledger service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrLedgerRejected, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ledger service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode ledger response: %w", err)
	}
	if response.TxHash == "" {
		return "", fmt.Errorf("ledger service returned an empty tx hash")
	}
	return response.TxHash, nil
}

// GetReceipt fetches the receipt for a submitted transaction. A 404 means
// the transaction is not yet mined and maps to a pending receipt.
func (c *HTTPLedgerClient) GetReceipt(ctx context.Context, txHash string) (*LedgerReceipt, error) {
	endpoint, err := c.endpoint("api", "v1", "transactions", txHash, "receipt")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ledger service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return &LedgerReceipt{Status: ReceiptStatusPending}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ledger service returned status %d: %s", resp.StatusCode, string(body))
	}

	var receipt LedgerReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}
