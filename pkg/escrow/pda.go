package escrow

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/payattn/payattn/core"
)

// ErrNoValidPDA is returned on the vanishingly unlikely event that no bump
// seed in [0, 255] produces an off-curve address.
var ErrNoValidPDA = errors.New("escrow: unable to find a valid program address")

// pdaMarker matches the suffix Solana's find_program_address hashes in after
// the seeds and program id, so a derived address can never collide with a
// normal ed25519 public key that some keypair actually controls.
var pdaMarker = []byte("ProgramDerivedAddress")

// DeriveEscrowAddress computes the escrow PDA for offerID under programID,
// using seeds ["escrow", offer_id] plus a bump, and returns the first
// address (scanning bump from 255 down to 0) that lies off the ed25519
// curve. It mirrors Solana's Pubkey.FindProgramAddress.
func DeriveEscrowAddress(programID core.Pubkey, offerID core.OfferID) (core.Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		h.Write([]byte("escrow"))
		h.Write(offerID.Bytes())
		h.Write([]byte{byte(bump)})
		h.Write(programID.Bytes())
		h.Write(pdaMarker)
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			addr, err := core.PubkeyFromBytes(sum)
			if err != nil {
				return core.Pubkey{}, 0, err
			}
			return addr, uint8(bump), nil
		}
	}
	return core.Pubkey{}, 0, ErrNoValidPDA
}

// VerifyEscrowAddress recomputes the PDA for (programID, offerID, bump) and
// reports whether it matches addr, the check an on-chain program performs
// before trusting an escrow account passed into an instruction.
func VerifyEscrowAddress(programID core.Pubkey, offerID core.OfferID, bump uint8, addr core.Pubkey) bool {
	h := sha256.New()
	h.Write([]byte("escrow"))
	h.Write(offerID.Bytes())
	h.Write([]byte{bump})
	h.Write(programID.Bytes())
	h.Write(pdaMarker)
	sum := h.Sum(nil)
	for i := range sum {
		if sum[i] != addr[i] {
			return false
		}
	}
	return true
}

// Edwards25519 field parameters, used only to test whether a compressed
// 32-byte value decompresses to a point on the curve.
var (
	fieldP = func() *big.Int {
		p := new(big.Int).Lsh(big.NewInt(1), 255)
		p.Sub(p, big.NewInt(19))
		return p
	}()
	curveD = func() *big.Int {
		// d = -121665/121666 mod p
		num := big.NewInt(-121665)
		den := big.NewInt(121666)
		inv := new(big.Int).ModInverse(den, fieldP)
		d := new(big.Int).Mul(num, inv)
		return d.Mod(d, fieldP)
	}()
)

// isOnCurve reports whether the compressed 32-byte Edwards25519 point
// encoding in b decompresses to a real curve point. A PDA is valid exactly
// when this returns false, guaranteeing no private key exists for it.
func isOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	// Clear the sign bit carried in the top bit of the last byte; only the
	// y-coordinate's existence on the curve matters for this check.
	yBytes := make([]byte, 32)
	copy(yBytes, b)
	yBytes[31] &= 0x7f
	reverse(yBytes)
	y := new(big.Int).SetBytes(yBytes)
	y.Mod(y, fieldP)

	one := big.NewInt(1)
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, fieldP)

	u := new(big.Int).Sub(y2, one)
	u.Mod(u, fieldP)

	v := new(big.Int).Mul(curveD, y2)
	v.Add(v, one)
	v.Mod(v, fieldP)

	if v.Sign() == 0 {
		return false
	}
	vInv := new(big.Int).ModInverse(v, fieldP)
	if vInv == nil {
		return false
	}

	x2 := new(big.Int).Mul(u, vInv)
	x2.Mod(x2, fieldP)

	if x2.Sign() == 0 {
		return true
	}

	// Euler's criterion: x2 is a quadratic residue mod p iff
	// x2^((p-1)/2) == 1, in which case a square root (an x coordinate)
	// exists and the point lies on the curve.
	exp := new(big.Int).Sub(fieldP, big.NewInt(1))
	exp.Div(exp, big.NewInt(2))
	legendre := new(big.Int).Exp(x2, exp, fieldP)
	return legendre.Cmp(one) == 0
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
