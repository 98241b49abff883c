package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const smsTimeout = 15 * time.Second

// SMSSender dispatches a text message to a mobile number.
type SMSSender interface {
	Send(ctx context.Context, mobile, text string) error
}

// SMSGatewayClient sends messages through an HTTP bulk SMS API.
type SMSGatewayClient struct {
	apiKey     string
	baseURL    string
	sender     string
	httpClient *http.Client
}

// NewSMSGatewayClient returns a client for the given API key, endpoint and sender id.
func NewSMSGatewayClient(apiKey, baseURL, sender string) *SMSGatewayClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSGatewayClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		sender:     sender,
		httpClient: &http.Client{Timeout: smsTimeout},
	}
}

type smsRequest struct {
	Route   string `json:"route"`
	Numbers string `json:"numbers"`
	Message string `json:"message"`
	Sender  string `json:"sender_id,omitempty"`
}

// Send posts the message. Any non-200 answer is an error. The text is never logged.
func (c *SMSGatewayClient) Send(ctx context.Context, mobile, text string) error {
	if c.apiKey == "" {
		return errors.New("sms: api key not configured")
	}

	raw, err := json.Marshal(smsRequest{
		Route:   "q",
		Numbers: mobile,
		Message: text,
		Sender:  c.sender,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// LogSMSSender only logs that a message would have been sent. Used in development
// when no SMS API key is configured.
type LogSMSSender struct{}

func (LogSMSSender) Send(_ context.Context, mobile, _ string) error {
	log.Warn().Str("mobile", MaskMobile(mobile)).Msg("sms gateway not configured, message dropped")
	return nil
}
