package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payattn/payattn/core"
)

func TestNewEntryIsDueImmediately(t *testing.T) {
	require := require.New(t)
	e := NewEntry(core.GenerateOfferID(), TxUserSettlement, core.Pubkey{}, 100)
	require.Equal(StatusPending, e.Status)
	require.True(e.Due(time.Now().UTC()))
}

func TestRecordFailureSchedulesBackoffUntilExhausted(t *testing.T) {
	require := require.New(t)
	e := NewEntry(core.GenerateOfferID(), TxUserSettlement, core.Pubkey{}, 100)
	e.MaxAttempts = 2

	e = e.RecordFailure(time.Minute, "rpc timeout")
	require.Equal(1, e.Attempts)
	require.Equal(StatusPending, e.Status)
	require.False(e.Due(time.Now().UTC()))
	require.True(e.Due(time.Now().UTC().Add(2 * time.Minute)))

	e = e.RecordFailure(time.Minute, "rpc timeout again")
	require.Equal(2, e.Attempts)
	require.True(e.Exhausted())
	require.Equal(StatusFailed, e.Status)
}

func TestRecordSuccessMarksDone(t *testing.T) {
	e := NewEntry(core.GenerateOfferID(), TxPublisherSettlement, core.Pubkey{}, 50)
	e = e.RecordSuccess("tx-abc123")
	require.Equal(t, StatusDone, e.Status)
	require.Equal(t, "tx-abc123", e.SuccessTxID)
}
