// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core holds the wire-level identifiers shared by every PayAttn
// package: offer identifiers and Solana-style public keys.
package core

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

// MaxOfferIDLen is the maximum length in bytes of an OfferID, matching the
// length-prefixed offer_id field of the on-chain escrow account layout.
const MaxOfferIDLen = 32

// PubkeyLen is the size in bytes of an ed25519/Solana public key.
const PubkeyLen = 32

var (
	// ErrOfferIDTooLong is returned when an offer id exceeds MaxOfferIDLen.
	ErrOfferIDTooLong = errors.New("core: offer id exceeds maximum length")
	// ErrOfferIDEmpty is returned when an offer id has zero length.
	ErrOfferIDEmpty = errors.New("core: offer id is empty")
	// ErrInvalidPubkeyLen is returned when a pubkey is not PubkeyLen bytes.
	ErrInvalidPubkeyLen = errors.New("core: public key must be 32 bytes")
)

// OfferID is an opaque, variable-length (<=32 byte) identifier for an offer.
// It is carried verbatim in the escrow account's length-prefixed offer_id
// field and used as one of the PDA derivation seeds.
type OfferID []byte

// NewOfferID validates b and returns it as an OfferID.
func NewOfferID(b []byte) (OfferID, error) {
	if len(b) == 0 {
		return nil, ErrOfferIDEmpty
	}
	if len(b) > MaxOfferIDLen {
		return nil, ErrOfferIDTooLong
	}
	out := make(OfferID, len(b))
	copy(out, b)
	return out, nil
}

// GenerateOfferID returns a random 16-byte OfferID, the default size used
// when a caller does not supply its own.
func GenerateOfferID() OfferID {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return OfferID(b)
}

// String renders the offer id as lowercase hex.
func (id OfferID) String() string {
	return hex.EncodeToString(id)
}

// Bytes returns the raw offer id bytes.
func (id OfferID) Bytes() []byte {
	return []byte(id)
}

// Equal reports whether two offer ids carry the same bytes.
func (id OfferID) Equal(other OfferID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// OfferIDFromHex parses a hex-encoded offer id.
func OfferIDFromHex(s string) (OfferID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return NewOfferID(b)
}

// TxIDLen is the size in bytes of a simulated on-chain transaction
// signature, matching Solana's 64-byte ed25519 signature format.
const TxIDLen = 64

// NewTxID returns a random base58-encoded transaction signature, standing
// in for the signature a validator assigns a landed transaction.
func NewTxID() string {
	b := make([]byte, TxIDLen)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base58.Encode(b)
}

// Pubkey is a 32-byte ed25519/Solana-style public key.
type Pubkey [PubkeyLen]byte

// PubkeyFromBytes validates and wraps a 32-byte public key.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLen {
		return pk, ErrInvalidPubkeyLen
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 decodes a base58-encoded Solana-style address.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		var zero Pubkey
		return zero, err
	}
	return PubkeyFromBytes(b)
}

// String renders the public key using the standard Solana base58 encoding.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns the raw 32-byte public key.
func (p Pubkey) Bytes() []byte {
	return p[:]
}

// IsZero reports whether the key is the all-zero sentinel, used to mark an
// unset/optional party in an escrow account.
func (p Pubkey) IsZero() bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
