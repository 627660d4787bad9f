// Package paymentgate implements x402 micropayment enforcement split across
// two cooperating services.
//
// The Gate runs in the vault server as middleware on the priced fetch
// route. It forwards each gated request to the payment Worker, reduces the
// worker's answer to a typed Decision, and either relays a rejection
// verbatim or admits the protected handler with the settlement headers
// merged into its response.
//
// The Worker runs as its own service. It demands an X-PAYMENT proof on the
// priced route, verifies and settles it through an x402 facilitator, and
// answers a bare success body; the vault server produces the actual
// response the client sees.
package paymentgate
