package paymentgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

// x402Version is the protocol version this implementation speaks.
const x402Version = 1

// PaymentRequirements describes one acceptable way to pay for a resource.
// Serialized into 402 responses and into facilitator calls.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// PaymentPayload is the decoded form of the client's payment proof header.
// The scheme-specific payload stays opaque; only the facilitator interprets
// it.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// VerifyResponse is the facilitator's answer to a verification request.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settlement request. On
// success it carries the on-chain transaction reference the client receives
// as a receipt.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// FacilitatorClient talks to an x402 facilitator over its verify and settle
// endpoints.
type FacilitatorClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewFacilitatorClient creates a client for the facilitator at baseURL.
func NewFacilitatorClient(baseURL string, timeout time.Duration, log *slog.Logger) *FacilitatorClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FacilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Verify checks the payment proof against the requirements without moving
// funds.
func (c *FacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/verify", payload, requirements, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle executes the verified payment on chain.
func (c *FacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "/settle", payload, requirements, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, payload PaymentPayload, requirements PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         x402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("failed to encode facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: facilitator unreachable: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: facilitator returned status %d for %s", interfaces.ErrUpstreamUnavailable, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed facilitator response: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	return nil
}
