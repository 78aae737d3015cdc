package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to a chain node over its REST API. Network errors and 5xx
// responses surface as ErrUnavailable so the engine can retry; a receipt
// marked reverted surfaces as TxReverted, never retried here.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the node at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type blockResponse struct {
	ID     string `json:"id"`
	Number uint64 `json:"number"`
}

type submitRequest struct {
	Raw       string `json:"raw"`
	Signature string `json:"signature"`
	Origin    string `json:"origin"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type receiptResponse struct {
	Reverted bool `json:"reverted"`
}

// BestBlock fetches the current chain head.
func (c *HTTPClient) BestBlock(ctx context.Context) (BlockRef, error) {
	var block blockResponse
	if err := c.get(ctx, "/blocks/best", &block); err != nil {
		return BlockRef{}, err
	}
	return BlockRef{ID: block.ID, Number: block.Number}, nil
}

// Submit posts a signed transaction to the node.
func (c *HTTPClient) Submit(ctx context.Context, tx *SignedTx) (string, error) {
	payload, err := json.Marshal(submitRequest{
		Raw:       hex.EncodeToString(tx.Raw),
		Signature: hex.EncodeToString(tx.Signature),
		Origin:    tx.Origin,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: node returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("submission rejected with status %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: bad submission response: %v", ErrUnavailable, err)
	}
	if out.ID == "" {
		out.ID = tx.ID
	}
	return out.ID, nil
}

// Status fetches the transaction receipt. A missing receipt means the
// transaction is still pending.
func (c *HTTPClient) Status(ctx context.Context, txID string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+txID+"/receipt", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build receipt request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return TxPending, nil
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: node returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("receipt query rejected with status %d", resp.StatusCode)
	}

	var receipt receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return "", fmt.Errorf("%w: bad receipt response: %v", ErrUnavailable, err)
	}
	if receipt.Reverted {
		return TxReverted, nil
	}
	return TxConfirmed, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: node returned %d for %s", ErrUnavailable, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: bad response for %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
