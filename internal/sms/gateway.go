package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewaySender delivers SMS through an HTTP gateway. Each send runs under
// its own bounded timeout so a slow provider cannot hold a request open.
type GatewaySender struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewGatewaySender creates a GatewaySender for the given gateway endpoint.
func NewGatewaySender(url, apiKey, senderID string, timeout time.Duration) *GatewaySender {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &GatewaySender{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: timeout},
	}
}

type gatewayRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id"`
}

// Send posts the message to the gateway. Non-2xx responses are errors.
func (g *GatewaySender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(gatewayRequest{To: phone, Message: message, SenderID: g.senderID})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
