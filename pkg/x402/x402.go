// Package x402 implements the HTTP 402 Payment Required handshake PayAttn
// uses to tell a client exactly what on-chain payment will unlock an ad
// impression: which chain, which escrow PDA, which amount, and where to
// verify once funded. PayAttn supports a single payment scheme (Solana
// "exact" transfer into a program-derived escrow account); the handshake
// itself follows the scheme-registry shape used by multi-scheme x402
// gateways, narrowed to the one scheme this service accepts.
package x402

import (
	"fmt"
	"net/http"

	"github.com/payattn/payattn/core"
)

// SchemeExactSolana is the only payment scheme PayAttn's x402 handshake
// advertises: an exact-amount SPL/lamport transfer into the escrow PDA.
const SchemeExactSolana = "exact"

// Header names exchanged during the 402 handshake.
const (
	HeaderPaymentChain          = "X-Payment-Chain"
	HeaderPaymentNetwork        = "X-Payment-Network"
	HeaderPaymentAmount         = "X-Payment-Amount"
	HeaderPaymentToken          = "X-Payment-Token"
	HeaderOfferID               = "X-Offer-Id"
	HeaderUserPubkey            = "X-User-Pubkey"
	HeaderPlatformPubkey        = "X-Platform-Pubkey"
	HeaderEscrowProgram         = "X-Escrow-Program"
	HeaderEscrowPDA             = "X-Escrow-PDA"
	HeaderVerificationEndpoint  = "X-Verification-Endpoint"
)

// PaymentRequirements is the JSON body returned alongside HTTP 402,
// describing exactly what payment will satisfy the request.
type PaymentRequirements struct {
	Scheme        string      `json:"scheme"`
	Chain         core.Chain  `json:"chain"`
	Network       core.Network `json:"network"`
	Amount        uint64      `json:"amount"`
	Token         string      `json:"token"`
	OfferID       string      `json:"offer_id"`
	UserPubkey    string      `json:"user_pubkey"`
	PlatformPubkey string     `json:"platform_pubkey"`
	ProgramID     string      `json:"program_id"`
	EscrowAddress string      `json:"escrow_address"`
	VerifyURL     string      `json:"verify_url"`
}

// PaymentPayload is what a client sends back in the X-Payment header once
// it has submitted (or believes it has submitted) the funding transaction.
type PaymentPayload struct {
	Scheme      string `json:"scheme"`
	OfferID     string `json:"offer_id"`
	Signature   string `json:"signature"` // base58 transaction signature
	EscrowAddr  string `json:"escrow_address"`
}

// VerificationResult is the outcome of checking a PaymentPayload against
// chain state.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// BuildRequirements constructs the 402 response body for offerID, pointing
// the client at the derived escrow PDA and the coordinator's verification
// endpoint.
func BuildRequirements(offerID core.OfferID, user, platform, programID, escrowAddr core.Pubkey, amount uint64, network core.Network, verifyURL string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:         SchemeExactSolana,
		Chain:          core.ChainSolana,
		Network:        network,
		Amount:         amount,
		Token:          "lamports",
		OfferID:        offerID.String(),
		UserPubkey:     user.String(),
		PlatformPubkey: platform.String(),
		ProgramID:      programID.String(),
		EscrowAddress:  escrowAddr.String(),
		VerifyURL:      verifyURL,
	}
}

// WriteRequired sets the full ten-header 402 handshake and writes the
// status line; callers still write the JSON PaymentRequirements body
// themselves via their HTTP framework's JSON encoder.
func WriteRequired(w http.ResponseWriter, req PaymentRequirements) {
	h := w.Header()
	h.Set(HeaderPaymentChain, string(req.Chain))
	h.Set(HeaderPaymentNetwork, string(req.Network))
	h.Set(HeaderPaymentAmount, fmt.Sprintf("%d", req.Amount))
	h.Set(HeaderPaymentToken, req.Token)
	h.Set(HeaderOfferID, req.OfferID)
	h.Set(HeaderUserPubkey, req.UserPubkey)
	h.Set(HeaderPlatformPubkey, req.PlatformPubkey)
	h.Set(HeaderEscrowProgram, req.ProgramID)
	h.Set(HeaderEscrowPDA, req.EscrowAddress)
	h.Set(HeaderVerificationEndpoint, req.VerifyURL)
	w.WriteHeader(http.StatusPaymentRequired)
}
