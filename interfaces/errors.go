package interfaces

import "errors"

var (
	// ErrValidation is returned for malformed salts, keys, TTLs or prices.
	// Requests failing validation are rejected before any side effects.
	ErrValidation = errors.New("validation failed")

	// ErrRecordNotFound is returned when no record exists for a computed
	// storage key. A mismatched salt also yields this.
	ErrRecordNotFound = errors.New("record not found")

	// ErrMalformedRecord signals a record that exists but fails structural
	// validation. Distinct from not-found: it indicates corruption.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDecryptionFailed covers every authenticated-decryption failure.
	// Callers must not reveal whether the key or the ciphertext was at fault.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrUpstreamUnavailable is returned when the randomness beacon or the
	// payment service is unreachable or timed out. Retryable by the caller.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrBeaconMalformed is returned when the beacon responds with data
	// that does not parse into a round and signature.
	ErrBeaconMalformed = errors.New("malformed beacon response")

	// ErrPaymentRejected indicates the payment verification service
	// declined the request.
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrConfiguration indicates missing or malformed deployment settings.
	// It aborts the request with no partial side effects.
	ErrConfiguration = errors.New("configuration error")

	// ErrStoreUnavailable is returned when a secret store backend is not
	// accessible.
	ErrStoreUnavailable = errors.New("secret store unavailable")
)
