package proof

import (
	"bytes"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/payattn/payattn/pkg/log"
	"github.com/payattn/payattn/pkg/metric"
)

// Validator verifies Groth16 proofs against the verifying keys held in a
// Registry. It never constructs a proving key and never proves anything
// itself: proving happens client-side, on the data the advertiser or user
// is not willing to reveal.
type Validator struct {
	registry *Registry
	metrics  *metric.Metrics
	log      log.Logger
}

// NewValidator builds a validator over registry. metrics and logger may be
// nil.
func NewValidator(registry *Registry, metrics *metric.Metrics, logger log.Logger) *Validator {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Validator{registry: registry, metrics: metrics, log: logger}
}

// Verify checks proofBytes against the verifying key registered for id,
// using publicAssignment (a circuit struct with only its public fields
// populated) to build the public witness. It returns false, nil for a
// proof that is well-formed but does not verify, and a non-nil error only
// when the inputs themselves are malformed (unknown circuit, corrupt
// proof bytes, a public assignment that cannot be turned into a witness).
// A witness of the wrong size for the verifying key fails groth16.Verify
// and is reported as false, nil.
func (v *Validator) Verify(id CircuitID, proofBytes []byte, publicAssignment frontend.Circuit) (bool, error) {
	vk, ok := v.registry.VerifyingKey(id)
	if !ok {
		v.observe(id, "unknown_circuit")
		return false, ErrUnknownCircuit
	}

	proof := groth16.NewProof(CurveID)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		v.observe(id, "malformed_proof")
		return false, err
	}

	publicWitness, err := frontend.NewWitness(publicAssignment, CurveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		v.observe(id, "malformed_witness")
		return false, err
	}

	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		v.observe(id, "rejected")
		v.log.Debug("proof rejected", "circuit", string(id), "error", err)
		return false, nil
	}

	v.observe(id, "accepted")
	return true, nil
}

func (v *Validator) observe(id CircuitID, result string) {
	if v.metrics == nil {
		return
	}
	v.metrics.ProofVerifications.WithLabelValues(string(id), result).Inc()
}
