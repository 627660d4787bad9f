package paymentgate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artlu99/wallets-and-faucet/interfaces"
)

const (
	// PaymentRequiredHeader carries the base64 payment requirements on a
	// 402 response.
	PaymentRequiredHeader = "Payment-Required"

	// PaymentResponseHeader carries the base64 settlement receipt on an
	// admitted response.
	PaymentResponseHeader = "X-Payment-Response"
)

// usdcBaseAddress is the USDC token contract on Base mainnet, the default
// settlement asset.
const usdcBaseAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

// usdcDecimals converts a USD price to USDC atomic units.
const usdcDecimals = 6

// WorkerConfig holds the payment worker's startup configuration.
type WorkerConfig struct {
	// PayTo is the payee's settlement address.
	PayTo string

	// Price is the USD charge for one priced request.
	Price float64

	// Network is the settlement network. Defaults to Base mainnet.
	Network string

	// FacilitatorURL is the x402 facilitator handling verify and settle.
	FacilitatorURL string

	// Description is shown to the payer in the payment requirements.
	Description string

	// RequestTimeout bounds each facilitator call.
	RequestTimeout time.Duration

	Log *slog.Logger
}

// Validate checks the worker's payment settings.
func (c *WorkerConfig) Validate() error {
	if c.PayTo == "" {
		return fmt.Errorf("%w: payto address is required", interfaces.ErrConfiguration)
	}
	if c.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", interfaces.ErrConfiguration)
	}
	if c.FacilitatorURL == "" {
		return fmt.Errorf("%w: facilitator url is required", interfaces.ErrConfiguration)
	}
	return nil
}

// Worker is the payment-verification service the gate forwards to. It
// enforces x402 payment on the priced route and answers 200 for everything
// else; the vault worker produces the actual response body.
type Worker struct {
	cfg         WorkerConfig
	facilitator *FacilitatorClient
	log         *slog.Logger
}

// NewWorker creates a payment worker from a validated configuration.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Network == "" {
		cfg.Network = "base"
	}
	if cfg.Description == "" {
		cfg.Description = "Pay to retrieve private key"
	}
	return &Worker{
		cfg:         cfg,
		facilitator: NewFacilitatorClient(cfg.FacilitatorURL, cfg.RequestTimeout, cfg.Log),
		log:         cfg.Log,
	}, nil
}

// Router returns the worker's HTTP routes: payment enforcement on the
// priced fetch route, unconditional success everywhere else.
func (s *Worker) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/eoa/{address}", s.handlePriced)
	mux.NotFound(s.handleUnpriced)
	mux.MethodNotAllowed(s.handleUnpriced)
	return mux
}

// handleUnpriced admits routes with no price attached.
func (s *Worker) handleUnpriced(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w)
}

// handlePriced runs the x402 exchange for one priced request: demand
// payment when no proof is attached, otherwise verify and settle it through
// the facilitator.
func (s *Worker) handlePriced(w http.ResponseWriter, r *http.Request) {
	requirements := s.requirementsFor(r)

	proof := r.Header.Get(PaymentHeader)
	if proof == "" {
		s.writePaymentRequired(w, requirements, "X-PAYMENT header is required")
		return
	}

	payload, err := decodePaymentProof(proof)
	if err != nil {
		s.log.Info("Rejecting malformed payment proof", "err", err)
		s.writePaymentRequired(w, requirements, "Invalid or malformed payment header")
		return
	}

	verification, err := s.facilitator.Verify(r.Context(), *payload, requirements)
	if err != nil {
		s.log.Error("Facilitator verify failed", "err", err)
		http.Error(w, "Payment facilitator unavailable", http.StatusBadGateway)
		return
	}
	if !verification.IsValid {
		s.log.Info("Payment proof rejected by facilitator",
			"err", fmt.Errorf("%w: %s", interfaces.ErrPaymentRejected, verification.InvalidReason))
		s.writePaymentRequired(w, requirements, verification.InvalidReason)
		return
	}

	settlement, err := s.facilitator.Settle(r.Context(), *payload, requirements)
	if err != nil {
		s.log.Error("Facilitator settle failed", "err", err)
		http.Error(w, "Payment facilitator unavailable", http.StatusBadGateway)
		return
	}
	if !settlement.Success {
		s.log.Info("Payment settlement failed", slog.String("reason", settlement.ErrorReason))
		s.writePaymentRequired(w, requirements, settlement.ErrorReason)
		return
	}

	receipt, err := json.Marshal(settlement)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set(PaymentResponseHeader, base64.StdEncoding.EncodeToString(receipt))
	s.log.Info("Payment settled",
		slog.String("payer", settlement.Payer),
		slog.String("transaction", settlement.Transaction))
	s.writeSuccess(w)
}

// requirementsFor builds the payment requirements for the requested
// resource.
func (s *Worker) requirementsFor(r *http.Request) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           s.cfg.Network,
		MaxAmountRequired: usdAtomicAmount(s.cfg.Price),
		Resource:          r.URL.Path,
		Description:       s.cfg.Description,
		MimeType:          "application/json",
		PayTo:             s.cfg.PayTo,
		MaxTimeoutSeconds: 60,
		Asset:             usdcBaseAddress,
		Extra:             json.RawMessage(`{"name":"USD Coin","version":"2"}`),
	}
}

func (s *Worker) writeSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"success":true}`)
}

// writePaymentRequired answers 402 with the requirements in both the body
// and the header, so payment clients of either protocol revision can read
// them.
func (s *Worker) writePaymentRequired(w http.ResponseWriter, requirements PaymentRequirements, reason string) {
	body, err := json.Marshal(map[string]any{
		"x402Version": x402Version,
		"error":       reason,
		"accepts":     []PaymentRequirements{requirements},
	})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	encoded, err := json.Marshal(requirements)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set(PaymentRequiredHeader, base64.StdEncoding.EncodeToString(encoded))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if _, err := w.Write(body); err != nil {
		s.log.Error("Failed to write payment-required response", "err", err)
	}
}

// decodePaymentProof parses the base64 JSON payment proof header.
func decodePaymentProof(proof string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(proof))
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}
	if payload.X402Version != x402Version {
		return nil, fmt.Errorf("unsupported x402 version %d", payload.X402Version)
	}
	return &payload, nil
}

// usdAtomicAmount renders a USD price in USDC atomic units.
func usdAtomicAmount(price float64) string {
	return strconv.FormatInt(int64(math.Round(price*math.Pow10(usdcDecimals))), 10)
}
