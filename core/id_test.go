package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfferIDRoundTrip(t *testing.T) {
	require := require.New(t)

	id, err := NewOfferID([]byte("hello-offer"))
	require.NoError(err)
	require.Equal("hello-offer", string(id.Bytes()))

	again, err := OfferIDFromHex(id.String())
	require.NoError(err)
	require.True(id.Equal(again))
}

func TestNewOfferIDRejectsEmptyAndOversize(t *testing.T) {
	require := require.New(t)

	_, err := NewOfferID(nil)
	require.ErrorIs(err, ErrOfferIDEmpty)

	_, err = NewOfferID(make([]byte, MaxOfferIDLen+1))
	require.ErrorIs(err, ErrOfferIDTooLong)
}

func TestGenerateOfferIDIsRandom(t *testing.T) {
	require := require.New(t)

	a := GenerateOfferID()
	b := GenerateOfferID()
	require.Len(a.Bytes(), 16)
	require.False(a.Equal(b))
}

func TestPubkeyBase58RoundTrip(t *testing.T) {
	require := require.New(t)

	var raw [32]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	pk, err := PubkeyFromBytes(raw[:])
	require.NoError(err)
	require.False(pk.IsZero())

	decoded, err := PubkeyFromBase58(pk.String())
	require.NoError(err)
	require.Equal(pk, decoded)
}

func TestPubkeyFromBytesRejectsWrongLength(t *testing.T) {
	require := require.New(t)

	_, err := PubkeyFromBytes(make([]byte, 31))
	require.ErrorIs(err, ErrInvalidPubkeyLen)
}

func TestZeroPubkeyIsZero(t *testing.T) {
	var pk Pubkey
	require.True(t, pk.IsZero())
}
