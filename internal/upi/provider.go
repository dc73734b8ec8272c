package upi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ProviderClient calls the configured UPI validation provider over HTTP.
// Calls carry their own bounded timeout, shorter than any RPC deadline.
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProviderClient creates a ProviderClient.
func NewProviderClient(baseURL, apiKey string, timeout time.Duration) *ProviderClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &ProviderClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type vpaResponse struct {
	Valid bool `json:"valid"`
}

type ifscResponse struct {
	Bank string `json:"bank"`
}

// VerifyVPA asks the provider whether the VPA resolves to a live account.
func (p *ProviderClient) VerifyVPA(ctx context.Context, vpa string) (bool, error) {
	var out vpaResponse
	if err := p.get(ctx, "/v1/vpa/"+url.PathEscape(vpa), &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// LookupIFSC resolves the bank name for an IFSC code.
func (p *ProviderClient) LookupIFSC(ctx context.Context, ifsc string) (string, error) {
	var out ifscResponse
	if err := p.get(ctx, "/v1/ifsc/"+url.PathEscape(ifsc), &out); err != nil {
		return "", err
	}
	return out.Bank, nil
}

func (p *ProviderClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("upi provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upi provider status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
