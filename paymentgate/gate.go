package paymentgate

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artlu99/wallets-and-faucet/interfaces"
	"github.com/artlu99/wallets-and-faucet/metrics"
)

// PaymentHeader carries the client's base64-encoded payment proof.
const PaymentHeader = "X-Payment"

// maxRelayBody bounds how much of the payment worker's response body is
// buffered for relay (1MB).
const maxRelayBody = 1 << 20

// Config holds the gate's startup configuration. Read-only after
// initialization.
type Config struct {
	// ChargePerRequest is the price of one gated request in USD.
	ChargePerRequest float64

	// TTL is the record lifetime; validated here alongside the payment
	// settings so a misconfigured deployment fails loudly.
	TTL time.Duration

	// PayTo is the payee's settlement address.
	PayTo string

	// FacilitatorURL is the x402 facilitator the payment worker consults.
	FacilitatorURL string

	// PaymentWorkerURL is the cooperating payment-verification service.
	PaymentWorkerURL string

	// Bypass admits every request without payment verification. Explicit
	// opt-out for development environments only.
	Bypass bool

	// RequestTimeout bounds the forward to the payment worker.
	RequestTimeout time.Duration

	Log *slog.Logger
}

// Validate checks that every payment setting a gated request depends on is
// present and well-formed.
func (c *Config) Validate() error {
	if c.Bypass {
		return nil
	}
	if c.ChargePerRequest <= 0 {
		return fmt.Errorf("%w: charge-per-request must be positive", interfaces.ErrConfiguration)
	}
	if c.TTL <= interfaces.MinTTL {
		return fmt.Errorf("%w: ttl must exceed %s", interfaces.ErrConfiguration, interfaces.MinTTL)
	}
	if c.PayTo == "" {
		return fmt.Errorf("%w: payto address is required", interfaces.ErrConfiguration)
	}
	if c.FacilitatorURL == "" {
		return fmt.Errorf("%w: facilitator url is required", interfaces.ErrConfiguration)
	}
	if c.PaymentWorkerURL == "" {
		return fmt.Errorf("%w: payment worker url is required", interfaces.ErrConfiguration)
	}
	return nil
}

// Decision is the gate's typed interpretation of the payment worker's
// answer. All control flow downstream of the forward branches on this value,
// never on raw response fields.
type Decision struct {
	// Admitted reports whether the request may reach the protected handler.
	Admitted bool

	// ForwardHeaders are the payment-protocol headers to merge into the
	// protected handler's response. Set only when admitted.
	ForwardHeaders http.Header

	// Status, Header and Body are the worker's response to relay verbatim.
	// Set only when rejected.
	Status int
	Header http.Header
	Body   []byte
}

// Gate is payment-enforcement middleware. On a gated route it forwards the
// request to the payment worker and admits the protected handler only after
// the worker reports a settled payment.
type Gate struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// NewGate creates a payment gate from a validated configuration.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Bypass {
		cfg.Log.Warn("Payment enforcement is bypassed, all gated requests will be admitted")
	}
	return &Gate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    cfg.Log,
	}, nil
}

// Middleware returns the http middleware enforcing payment on the routes it
// wraps. The protected handler runs only on an admitted decision.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.cfg.Bypass {
				g.log.Info("Admitting request without payment verification", slog.String("path", r.URL.Path))
				metrics.PaymentDecisions.WithLabelValues("bypassed").Inc()
				next.ServeHTTP(w, r)
				return
			}

			decision, err := g.decide(r)
			if err != nil {
				g.log.Error("Payment verification forward failed", "err", err)
				metrics.PaymentDecisions.WithLabelValues("error").Inc()
				http.Error(w, "Payment verification unavailable", http.StatusBadGateway)
				return
			}

			if !decision.Admitted {
				g.relayRejection(w, decision)
				metrics.PaymentDecisions.WithLabelValues("rejected").Inc()
				return
			}

			metrics.PaymentDecisions.WithLabelValues("admitted").Inc()

			// Settlement receipts from the worker must survive the
			// protected handler writing its own response.
			merged := &headerMergeWriter{ResponseWriter: w, pending: decision.ForwardHeaders}
			next.ServeHTTP(merged, r)
			merged.flushPending()
		})
	}
}

// decide forwards the request to the payment worker and reduces the
// response to a Decision. The original request body is restored so the
// protected handler can still read it.
func (g *Gate) decide(r *http.Request) (*Decision, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxRelayBody))
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	target := strings.TrimRight(g.cfg.PaymentWorkerURL, "/") + r.URL.RequestURI()
	fwd, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build forward request: %w", err)
	}

	for name, values := range r.Header {
		if http.CanonicalHeaderKey(name) == PaymentHeader {
			// The payment proof must arrive as one base64 line. Header
			// folding or accidental splitting introduces whitespace the
			// worker's decoder chokes on.
			fwd.Header.Set(PaymentHeader, stripWhitespace(strings.Join(values, "")))
			continue
		}
		for _, value := range values {
			fwd.Header.Add(name, value)
		}
	}

	resp, err := g.client.Do(fwd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read payment worker response: %v", interfaces.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Info("Payment rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("path", r.URL.Path))
		return &Decision{
			Admitted: false,
			Status:   resp.StatusCode,
			Header:   resp.Header.Clone(),
			Body:     respBody,
		}, nil
	}

	return &Decision{
		Admitted:       true,
		ForwardHeaders: paymentProtocolHeaders(resp.Header),
	}, nil
}

// relayRejection returns the worker's rejection to the client unchanged, so
// the client's payment library can read requirement and challenge headers
// and retry with proof.
func (g *Gate) relayRejection(w http.ResponseWriter, d *Decision) {
	for name, values := range d.Header {
		// The relayed body may be truncated at maxRelayBody, so the
		// worker's framing headers no longer describe it. net/http
		// recomputes them for the body actually written.
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Transfer-Encoding":
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(d.Status)
	if len(d.Body) > 0 {
		if _, err := w.Write(d.Body); err != nil {
			g.log.Error("Failed to relay rejection body", "err", err)
		}
	}
}

// paymentProtocolHeaders extracts the headers in the payment-protocol
// namespace (X-* and Payment-*).
func paymentProtocolHeaders(h http.Header) http.Header {
	out := make(http.Header)
	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-") && !strings.HasPrefix(lower, "payment-") {
			continue
		}
		for _, value := range values {
			out.Add(name, value)
		}
	}
	return out
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			return -1
		}
		return r
	}, s)
}

// headerMergeWriter injects pending payment headers right before the
// wrapped handler commits its response. Late injection would be dropped by
// net/http once the header block is flushed.
type headerMergeWriter struct {
	http.ResponseWriter
	pending     http.Header
	wroteHeader bool
}

func (w *headerMergeWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.mergePending()
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *headerMergeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// flushPending covers handlers that never write anything.
func (w *headerMergeWriter) flushPending() {
	if !w.wroteHeader {
		w.mergePending()
		w.wroteHeader = true
	}
}

func (w *headerMergeWriter) mergePending() {
	for name, values := range w.pending {
		for _, value := range values {
			w.ResponseWriter.Header().Set(name, value)
		}
	}
}
