package metric

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEveryCollector(t *testing.T) {
	require := require.New(t)
	m := New()

	m.OffersSubmitted.Inc()
	m.EscrowInstructions.WithLabelValues("settle_user", "ok").Inc()
	m.SettlementLegsSent.WithLabelValues("settle_user", "ok").Inc()
	m.RetryAttempts.WithLabelValues("success").Inc()
	m.ProofVerifications.WithLabelValues("age_range", "accepted").Inc()
	m.HTTPRequests.WithLabelValues("/api/v1/offers", "200").Inc()

	families, err := m.GetGatherer().Gather()
	require.NoError(err)
	require.NotEmpty(families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(names["payattn_offers_submitted_total"])
	require.True(names["payattn_escrow_instructions_total"])
	require.True(names["payattn_settlement_legs_total"])
	require.True(names["payattn_proof_verifications_total"])
}

func TestTwoInstancesDoNotCollide(t *testing.T) {
	require := require.New(t)
	a := New()
	b := New()

	a.OffersSubmitted.Inc()
	a.OffersSubmitted.Inc()
	b.OffersSubmitted.Inc()

	require.Equal(float64(2), counterValue(t, a.OffersSubmitted))
	require.Equal(float64(1), counterValue(t, b.OffersSubmitted))
}

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
