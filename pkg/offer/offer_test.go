package offer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionAllowsDocumentedEdges(t *testing.T) {
	require := require.New(t)

	require.True(CanTransition(StatusOfferMade, StatusAccepted))
	require.True(CanTransition(StatusOfferMade, StatusRejected))
	require.True(CanTransition(StatusAccepted, StatusFunded))
	require.True(CanTransition(StatusFunded, StatusSettling))
	require.True(CanTransition(StatusFunded, StatusRefunded))
	require.True(CanTransition(StatusSettling, StatusSettled))
	require.True(CanTransition(StatusSettling, StatusFunded))
	require.True(CanTransition(StatusFunded, StatusSettled))
}

func TestCanTransitionRejectsSkippedAndTerminalEdges(t *testing.T) {
	require := require.New(t)

	require.False(CanTransition(StatusOfferMade, StatusFunded))
	require.False(CanTransition(StatusAccepted, StatusSettled))
	require.False(CanTransition(StatusSettled, StatusFunded))
	require.False(CanTransition(StatusRejected, StatusAccepted))
	require.False(CanTransition(StatusRefunded, StatusFunded))
}
