package vaultservice

// Header and query parameter names of the public API.
const (
	// EncryptionSecretHeader carries an optional per-request override for
	// the symmetric encryption key (256-bit base85 string).
	EncryptionSecretHeader = "X-Encryption-Secret"

	// SaltQueryParam carries an optional salt override on fetch.
	SaltQueryParam = "salt"
)

// CreateRequest is the body of POST /eoa.
type CreateRequest struct {
	// Mix blends the generated private key with the public randomness
	// beacon before use.
	Mix bool `json:"mix"`

	// Mnemonic opts in to the 24-word encoding in the response.
	Mnemonic bool `json:"mnemonic"`

	// Salt is an optional per-request salt override (≤255 character
	// base85 string).
	Salt string `json:"salt"`
}

// EOAResponse is the response shape shared by create and fetch.
type EOAResponse struct {
	Address      string `json:"address"`
	PK           string `json:"pk"`
	Mnemonic     string `json:"mnemonic,omitempty"`
	ExpiresAfter int64  `json:"expiresAfter,omitempty"`
}

// EphemeralSecretsResponse is the response of GET /ephemeral-secrets.
type EphemeralSecretsResponse struct {
	Salt             string `json:"salt"`
	EncryptionSecret string `json:"encryption_secret"`
	Independent      bool   `json:"independent"`
	Mixed            bool   `json:"mixed"`
}

// StatusResponse is the response of GET /status.
type StatusResponse struct {
	TotalEOACreated         int64  `json:"total_eoa_created"`
	TotalEOARetrieved       int64  `json:"total_eoa_retrieved"`
	TotalEOAFailedToDecrypt int64  `json:"total_eoa_failed_to_decrypt"`
	CurrentEOACount         int64  `json:"current_eoa_count"`
	TimeToDeletion          string `json:"time_to_deletion"`
	X402Price               string `json:"x402_price"`
	PublicRandomnessSource  string `json:"public_randomness_source"`
	SaltRules               string `json:"user_provided_salt_rules"`
	EncryptionKeyRules      string `json:"user_provided_encryption_key_rules"`
}

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying error for errors.Is checks.
func (e *RequestError) Unwrap() error {
	return e.Err
}
