// Package perrors defines the error taxonomy shared by every PayAttn
// package: category-grouped sentinel errors plus an ErrorType classifier
// that HTTP handlers use to pick a status code without inspecting strings.
package perrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a sentinel error into a broad category.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeConflict
	ErrorTypeNotFound
	ErrorTypeUnauthorized
	ErrorTypeChain
	ErrorTypeStorage
	ErrorTypeConfiguration
	ErrorTypeCustody
)

// Validation errors: malformed or out-of-range request input.
var (
	ErrAmountZero        = errors.New("perrors: amount must be greater than zero")
	ErrOfferIDTooLong    = errors.New("perrors: offer id exceeds 32 bytes")
	ErrOfferIDEmpty      = errors.New("perrors: offer id is empty")
	ErrInvalidPubkey     = errors.New("perrors: public key must be 32 bytes")
	ErrInvalidSplit      = errors.New("perrors: settlement split does not sum to the escrow amount")
	ErrInvalidProof      = errors.New("perrors: proof failed verification")
	ErrUnknownCircuit    = errors.New("perrors: unknown circuit id")
)

// Conflict errors: the request is well-formed but the current state
// disallows it.
var (
	ErrOfferAlreadyAccepted  = errors.New("perrors: offer already accepted")
	ErrOfferNotAccepted      = errors.New("perrors: offer has not been accepted")
	ErrOfferNotFunded        = errors.New("perrors: escrow has not been funded")
	ErrAlreadySettled        = errors.New("perrors: party already settled")
	ErrPrerequisiteNotSettled = errors.New("perrors: platform settlement requires user and publisher settled first")
	ErrNotRefundable         = errors.New("perrors: escrow is not eligible for refund")
	ErrInsufficientFunds     = errors.New("perrors: escrow balance is insufficient")
	ErrCASConflict           = errors.New("perrors: offer status changed concurrently, retry")
)

// Not-found errors.
var (
	ErrOfferNotFound    = errors.New("perrors: offer not found")
	ErrEscrowNotFound   = errors.New("perrors: escrow account not found")
	ErrCreativeNotFound = errors.New("perrors: ad creative not found")
	ErrPartyNotFound    = errors.New("perrors: party not found")
)

// Authorization errors.
var (
	ErrUnauthorizedParty = errors.New("perrors: caller is not a party to this offer")
	ErrInvalidSignature  = errors.New("perrors: signature verification failed")
)

// Custody errors: an instruction's supplied account doesn't match what the
// escrow account has on record, or the escrow can't cover what's asked of
// it.
var (
	ErrPDAMismatch    = errors.New("perrors: derived PDA does not match the supplied escrow address")
	ErrAmountMismatch = errors.New("perrors: supplied amount does not match the escrow's locked amount")
	ErrUserKeyMismatch = errors.New("perrors: supplied user account does not match escrow.user")
	ErrPlatformKeyMismatch = errors.New("perrors: supplied platform account does not match escrow.platform")
	ErrAdvertiserKeyMismatch = errors.New("perrors: supplied advertiser account does not match escrow.advertiser")
	ErrInsufficientAdvertiserFunds = errors.New("perrors: advertiser has insufficient funds to create this escrow")
)

// Chain/RPC errors.
var (
	ErrChainTimeout      = errors.New("perrors: on-chain transaction timed out")
	ErrChainRejected     = errors.New("perrors: on-chain transaction rejected")
	ErrSimulationFailed  = errors.New("perrors: transaction simulation failed")
)

// Storage/configuration errors.
var (
	ErrStorageUnavailable = errors.New("perrors: storage backend unavailable")
	ErrMissingConfig      = errors.New("perrors: required configuration value is missing")
	ErrInvalidConfig      = errors.New("perrors: configuration value is invalid")
)

var typeByError = map[error]ErrorType{
	ErrAmountZero:     ErrorTypeValidation,
	ErrOfferIDTooLong: ErrorTypeValidation,
	ErrOfferIDEmpty:   ErrorTypeValidation,
	ErrInvalidPubkey:  ErrorTypeValidation,
	ErrInvalidSplit:   ErrorTypeValidation,
	ErrInvalidProof:   ErrorTypeValidation,
	ErrUnknownCircuit: ErrorTypeValidation,

	ErrOfferAlreadyAccepted:   ErrorTypeConflict,
	ErrOfferNotAccepted:       ErrorTypeConflict,
	ErrOfferNotFunded:         ErrorTypeConflict,
	ErrAlreadySettled:         ErrorTypeConflict,
	ErrPrerequisiteNotSettled: ErrorTypeConflict,
	ErrNotRefundable:          ErrorTypeConflict,
	ErrInsufficientFunds:      ErrorTypeConflict,
	ErrCASConflict:            ErrorTypeConflict,

	ErrOfferNotFound:    ErrorTypeNotFound,
	ErrEscrowNotFound:   ErrorTypeNotFound,
	ErrCreativeNotFound: ErrorTypeNotFound,
	ErrPartyNotFound:    ErrorTypeNotFound,

	ErrUnauthorizedParty: ErrorTypeUnauthorized,
	ErrInvalidSignature:  ErrorTypeUnauthorized,

	ErrPDAMismatch:                 ErrorTypeCustody,
	ErrAmountMismatch:              ErrorTypeCustody,
	ErrUserKeyMismatch:             ErrorTypeCustody,
	ErrPlatformKeyMismatch:         ErrorTypeCustody,
	ErrAdvertiserKeyMismatch:       ErrorTypeCustody,
	ErrInsufficientAdvertiserFunds: ErrorTypeCustody,

	ErrChainTimeout:     ErrorTypeChain,
	ErrChainRejected:    ErrorTypeChain,
	ErrSimulationFailed: ErrorTypeChain,

	ErrStorageUnavailable: ErrorTypeStorage,
	ErrMissingConfig:      ErrorTypeConfiguration,
	ErrInvalidConfig:      ErrorTypeConfiguration,
}

// TypeOf classifies err by walking errors.Is against the known sentinels.
// Unrecognized errors are ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	for sentinel, t := range typeByError {
		if errors.Is(err, sentinel) {
			return t
		}
	}
	return ErrorTypeUnknown
}

// HTTPStatus maps err to the status code an API handler should return.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeChain:
		return http.StatusBadGateway
	case ErrorTypeCustody:
		return http.StatusForbidden
	case ErrorTypeStorage, ErrorTypeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Wrap annotates err with context while preserving errors.Is matching
// against the original sentinel.
func Wrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
