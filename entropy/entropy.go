// Package entropy provides the randomness source: locally generated CSPRNG
// bytes, optionally mixed with the drand public randomness beacon.
package entropy

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/artlu99/wallets-and-faucet/interfaces"
	"github.com/artlu99/wallets-and-faucet/metrics"
)

// DefaultBeaconURL is the drand quicknet latest-round endpoint.
// https://docs.drand.love/dev-guide/developer/http-api
const DefaultBeaconURL = "https://api.drand.sh/v2/beacons/quicknet/rounds/latest"

// DefaultBeaconTimeout bounds the outbound beacon call.
const DefaultBeaconTimeout = 10 * time.Second

// beaconRound is the subset of the drand round response we consume.
type beaconRound struct {
	Round     uint64 `json:"round"`
	Signature string `json:"signature"`
}

// Source produces uniformly random bytes and mixes them with beacon output.
type Source struct {
	beaconURL string
	client    *http.Client
	log       *slog.Logger
}

// NewSource creates a randomness source. An empty beaconURL selects the
// default drand quicknet endpoint; a zero timeout selects the default bound.
func NewSource(beaconURL string, timeout time.Duration, log *slog.Logger) *Source {
	if beaconURL == "" {
		beaconURL = DefaultBeaconURL
	}
	if timeout == 0 {
		timeout = DefaultBeaconTimeout
	}
	return &Source{
		beaconURL: beaconURL,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// BeaconURL returns the configured beacon endpoint, for status reporting.
func (s *Source) BeaconURL() string {
	return s.beaconURL
}

// Generate returns n uniformly random bytes from the operating system's
// CSPRNG. Never seeded, never reused across calls.
func (s *Source) Generate(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// Mix fetches the latest beacon round and returns
// SHA-256(local || signatureBytes).
//
// Ordering is load-bearing: the local bytes are generated before the beacon
// is queried, committing to them so neither side can bias the result
// unilaterally. Callers must not regenerate local bytes after a Mix failure
// and retry with the same round.
func (s *Source) Mix(ctx context.Context, local []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.beaconURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: beacon request failed: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: beacon returned status %d", interfaces.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: failed to read beacon response: %v", interfaces.ErrUpstreamUnavailable, err)
	}

	var round beaconRound
	if err := json.Unmarshal(body, &round); err != nil {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBeaconMalformed, err)
	}
	if round.Round == 0 || round.Signature == "" {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: missing round or signature", interfaces.ErrBeaconMalformed)
	}

	signatureBytes, err := hex.DecodeString(round.Signature)
	if err != nil {
		metrics.BeaconErrors.Inc()
		return nil, fmt.Errorf("%w: signature is not hex", interfaces.ErrBeaconMalformed)
	}

	s.log.Debug("Mixed entropy with beacon", slog.Uint64("round", round.Round))

	combined := make([]byte, 0, len(local)+len(signatureBytes))
	combined = append(combined, local...)
	combined = append(combined, signatureBytes...)
	sum := sha256.Sum256(combined)
	return sum[:], nil
}
