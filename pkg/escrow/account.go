// Package escrow implements the on-chain-style escrow program: account
// layout, program-derived-address rules and the five instructions that
// move an impression's payment through create -> settle -> close/refund.
//
// The package is written as a local simulation of a Solana program: it
// reproduces the account's exact byte layout and the instruction rules a
// real on-chain program would enforce, but executes them against Go state
// (escrow.State) rather than a validator. This lets the rest of PayAttn
// exercise the full escrow lifecycle without a live cluster.
package escrow

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/perrors"
)

// discriminator is the fixed 8-byte account-type tag, in the style of an
// Anchor account discriminator, prefixed to the serialized account so a
// reader can distinguish escrow accounts from any other account kind
// sharing the same program.
var discriminator = [8]byte{'p', 'a', 'y', 'e', 's', 'c', 'r', '1'}

// Account is the on-chain state of a single offer's escrow. The publisher
// is deliberately absent from the stored parties: its identity is bound
// at settlement time (an impression can land on any publisher that
// served it), not at escrow creation.
type Account struct {
	OfferID    core.OfferID
	Advertiser core.Pubkey
	User       core.Pubkey
	Platform   core.Pubkey
	Amount     uint64
	CreatedAt  time.Time

	SettledUser      bool
	SettledPublisher bool
	SettledPlatform  bool

	Bump uint8
}

// MarshalBinary serializes the account to its bit-exact on-chain layout:
//
//	8 bytes  discriminator
//	1 byte   offer_id length
//	N bytes  offer_id (N = length byte, N <= 32)
//	32 bytes advertiser pubkey
//	32 bytes user pubkey
//	32 bytes platform pubkey
//	8 bytes  amount, little-endian u64
//	8 bytes  created_at, little-endian i64 unix seconds
//	1 byte   user_settled   (0/1)
//	1 byte   publisher_settled (0/1)
//	1 byte   platform_settled  (0/1)
//	1 byte   bump
func (a *Account) MarshalBinary() ([]byte, error) {
	if len(a.OfferID) > core.MaxOfferIDLen {
		return nil, perrors.ErrOfferIDTooLong
	}
	buf := &bytes.Buffer{}
	buf.Write(discriminator[:])
	buf.WriteByte(byte(len(a.OfferID)))
	buf.Write(a.OfferID)
	buf.Write(a.Advertiser.Bytes())
	buf.Write(a.User.Bytes())
	buf.Write(a.Platform.Bytes())

	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], a.Amount)
	buf.Write(amt[:])

	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(a.CreatedAt.Unix()))
	buf.Write(ts[:])

	buf.WriteByte(boolByte(a.SettledUser))
	buf.WriteByte(boolByte(a.SettledPublisher))
	buf.WriteByte(boolByte(a.SettledPlatform))
	buf.WriteByte(a.Bump)

	return buf.Bytes(), nil
}

// UnmarshalBinary parses an Account from the layout produced by
// MarshalBinary.
func (a *Account) UnmarshalBinary(data []byte) error {
	if len(data) < 8+1 {
		return fmt.Errorf("escrow: account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return fmt.Errorf("escrow: bad account discriminator")
	}
	r := data[8:]

	idLen := int(r[0])
	r = r[1:]
	if idLen > core.MaxOfferIDLen || len(r) < idLen+32*3+8+8+3+1 {
		return fmt.Errorf("escrow: malformed account data")
	}
	a.OfferID = core.OfferID(append([]byte(nil), r[:idLen]...))
	r = r[idLen:]

	var err error
	if a.Advertiser, err = core.PubkeyFromBytes(r[:32]); err != nil {
		return err
	}
	r = r[32:]
	if a.User, err = core.PubkeyFromBytes(r[:32]); err != nil {
		return err
	}
	r = r[32:]
	if a.Platform, err = core.PubkeyFromBytes(r[:32]); err != nil {
		return err
	}
	r = r[32:]

	a.Amount = binary.LittleEndian.Uint64(r[:8])
	r = r[8:]
	a.CreatedAt = time.Unix(int64(binary.LittleEndian.Uint64(r[:8])), 0).UTC()
	r = r[8:]

	a.SettledUser = r[0] != 0
	a.SettledPublisher = r[1] != 0
	a.SettledPlatform = r[2] != 0
	a.Bump = r[3]

	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// AllPrerequisitesSettled reports whether the user and publisher legs have
// both landed, the condition under which settle_platform is allowed to
// close the account.
func (a *Account) AllPrerequisitesSettled() bool {
	return a.SettledUser && a.SettledPublisher
}
