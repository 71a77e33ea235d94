package escrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/core"
)

func testPubkey(t *testing.T, seed byte) core.Pubkey {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = seed
	}
	pk, err := core.PubkeyFromBytes(raw[:])
	require.NoError(t, err)
	return pk
}

func TestAccountMarshalRoundTrip(t *testing.T) {
	require := require.New(t)

	offerID, err := core.NewOfferID([]byte("offer-123"))
	require.NoError(err)

	acct := &Account{
		OfferID:          offerID,
		Advertiser:       testPubkey(t, 1),
		User:             testPubkey(t, 2),
		Platform:         testPubkey(t, 3),
		Amount:           1_000_000,
		CreatedAt:        time.Unix(1_700_000_000, 0).UTC(),
		SettledUser:      true,
		SettledPublisher: false,
		SettledPlatform:  false,
		Bump:             254,
	}

	data, err := acct.MarshalBinary()
	require.NoError(err)

	var decoded Account
	require.NoError(decoded.UnmarshalBinary(data))

	require.True(decoded.OfferID.Equal(offerID))
	require.Equal(acct.Advertiser, decoded.Advertiser)
	require.Equal(acct.User, decoded.User)
	require.Equal(acct.Platform, decoded.Platform)
	require.Equal(acct.Amount, decoded.Amount)
	require.Equal(acct.CreatedAt, decoded.CreatedAt)
	require.Equal(acct.SettledUser, decoded.SettledUser)
	require.Equal(acct.SettledPublisher, decoded.SettledPublisher)
	require.Equal(acct.SettledPlatform, decoded.SettledPlatform)
	require.Equal(acct.Bump, decoded.Bump)
}

func TestAccountUnmarshalRejectsBadDiscriminator(t *testing.T) {
	data := make([]byte, 9)
	err := (&Account{}).UnmarshalBinary(data)
	require.Error(t, err)
}

func TestAllPrerequisitesSettled(t *testing.T) {
	require := require.New(t)

	acct := &Account{}
	require.False(acct.AllPrerequisitesSettled())

	acct.SettledUser = true
	require.False(acct.AllPrerequisitesSettled())

	acct.SettledPublisher = true
	require.True(acct.AllPrerequisitesSettled())
}
