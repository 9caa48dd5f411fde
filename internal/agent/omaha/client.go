// Package omaha implements the HTTP client side of the update-check
// protocol: one JSON POST per exchange, an optional event payload, and the
// parsed update offer on the way back.
package omaha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/updrive-io/updrive/internal/updater"
)

const defaultTimeout = 30 * time.Second

// checkRequest is the wire form of one exchange.
type checkRequest struct {
	AppID             string     `json:"app_id"`
	PriorResponseCode int        `json:"prior_response_code,omitempty"`
	Event             *wireEvent `json:"event,omitempty"`
}

type wireEvent struct {
	Kind   string `json:"kind"`
	Result int    `json:"result"`
}

// checkResponse is the wire form of the server's answer. Event pings get an
// empty body back.
type checkResponse struct {
	UpdateExists bool   `json:"update_exists"`
	Version      string `json:"version"`
	PayloadURL   string `json:"payload_url"`
	PayloadHash  string `json:"payload_hash"`
	PayloadSize  uint64 `json:"payload_size"`
	IsDelta      bool   `json:"is_delta"`
	NeedsReboot  bool   `json:"needs_reboot"`
	Prompt       bool   `json:"prompt"`
}

// Client talks to the update-metadata server.
type Client struct {
	hc *http.Client
}

var _ updater.UpdateCheckClient = (*Client)(nil)

// NewClient creates a client with the given request timeout. Zero uses the
// default.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{hc: &http.Client{Timeout: timeout}}
}

// Request implements updater.UpdateCheckClient.
func (c *Client) Request(ctx context.Context, params updater.RequestParams) (*updater.Response, int, error) {
	wire := checkRequest{
		AppID:             params.AppID,
		PriorResponseCode: params.PriorResponseCode,
	}
	if params.Event != nil {
		wire.Event = &wireEvent{
			Kind:   params.Event.Kind,
			Result: int(params.Event.Result),
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, 0, fmt.Errorf("encode update request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.ServerURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("update server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("update server returned %s", resp.Status)
	}

	if params.Event != nil {
		// Pings only care about transport success.
		return nil, resp.StatusCode, nil
	}

	var wireResp checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode update response: %w", err)
	}

	return &updater.Response{
		UpdateExists: wireResp.UpdateExists,
		Version:      wireResp.Version,
		PayloadURL:   wireResp.PayloadURL,
		PayloadHash:  wireResp.PayloadHash,
		PayloadSize:  wireResp.PayloadSize,
		IsDelta:      wireResp.IsDelta,
		NeedsReboot:  wireResp.NeedsReboot,
		Prompt:       wireResp.Prompt,
	}, resp.StatusCode, nil
}
