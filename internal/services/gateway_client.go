package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PaymentGateway opens orders at the payment provider.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrderResponse, error)
}

// GatewayOrderRequest is the body sent to open an order. Amount is in minor units.
type GatewayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// GatewayOrderResponse is the provider's view of a newly opened order.
type GatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// RazorpayClient talks to a Razorpay-compatible orders API with basic auth.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpayClient constructs a RazorpayClient.
func NewRazorpayClient(baseURL, keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateOrder posts to /v1/orders. Non-2xx responses are returned as errors.
func (c *RazorpayClient) CreateOrder(ctx context.Context, in GatewayOrderRequest) (*GatewayOrderResponse, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway create order failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out GatewayOrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("gateway unmarshal: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("gateway returned an order without id")
	}
	return &out, nil
}
