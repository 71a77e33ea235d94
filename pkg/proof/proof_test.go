package proof

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/stretchr/testify/require"
)

// compileAndSetup compiles RangeCheckCircuit and runs a fresh Groth16 setup,
// the way a circuit's trusted setup would run once out of band in
// production. Tests use it directly instead of Registry.Setup so they can
// keep the proving key around to generate a proof to verify against.
func compileAndSetup(t *testing.T) (groth16.ProvingKey, groth16.VerifyingKey) {
	t.Helper()
	require := require.New(t)

	var circuit RangeCheckCircuit
	ccs, err := frontend.Compile(CurveID.ScalarField(), r1cs.NewBuilder, &circuit)
	require.NoError(err)

	pk, vk, err := groth16.Setup(ccs)
	require.NoError(err)
	return pk, vk
}

func proveRangeCheck(t *testing.T, pk groth16.ProvingKey, value, min, max int64) []byte {
	t.Helper()
	require := require.New(t)

	var circuit RangeCheckCircuit
	ccs, err := frontend.Compile(CurveID.ScalarField(), r1cs.NewBuilder, &circuit)
	require.NoError(err)

	assignment := &RangeCheckCircuit{Value: value, Min: min, Max: max}
	witness, err := frontend.NewWitness(assignment, CurveID.ScalarField())
	require.NoError(err)

	proof, err := groth16.Prove(ccs, pk, witness)
	require.NoError(err)

	var buf bytes.Buffer
	_, err = proof.WriteTo(&buf)
	require.NoError(err)
	return buf.Bytes()
}

func TestValidatorVerifiesGenuineRangeCheckProof(t *testing.T) {
	require := require.New(t)

	pk, vk := compileAndSetup(t)

	registry := NewRegistry()
	registry.mu.Lock()
	registry.vks[CircuitRangeCheck] = vk
	registry.mu.Unlock()

	validator := NewValidator(registry, nil, nil)
	proofBytes := proveRangeCheck(t, pk, 42, 0, 100)

	ok, err := validator.Verify(CircuitRangeCheck, proofBytes, NewRangeCheckAssignment(0, 100).Circuit())
	require.NoError(err)
	require.True(ok)
}

func TestValidatorRejectsProofWithWrongPublicInputs(t *testing.T) {
	require := require.New(t)

	pk, vk := compileAndSetup(t)

	registry := NewRegistry()
	registry.mu.Lock()
	registry.vks[CircuitRangeCheck] = vk
	registry.mu.Unlock()

	validator := NewValidator(registry, nil, nil)
	proofBytes := proveRangeCheck(t, pk, 42, 0, 100)

	// the proof was generated for the range [0,100]; verifying it against a
	// different claimed public range must fail rather than silently pass
	ok, err := validator.Verify(CircuitRangeCheck, proofBytes, NewRangeCheckAssignment(0, 10).Circuit())
	require.NoError(err)
	require.False(ok)
}

func TestRegistrySetupAndValidatorRoundTrip(t *testing.T) {
	require := require.New(t)

	registry := NewRegistry()
	_, _, err := registry.Setup(CircuitRangeCheck)
	require.NoError(err)

	vk, ok := registry.VerifyingKey(CircuitRangeCheck)
	require.True(ok)
	require.NotNil(vk)
}

func TestValidatorRejectsUnknownCircuit(t *testing.T) {
	require := require.New(t)
	registry := NewRegistry()
	validator := NewValidator(registry, nil, nil)

	_, err := validator.Verify(CircuitID("nonexistent"), []byte("garbage"), NewRangeCheckAssignment(0, 10).Circuit())
	require.ErrorIs(err, ErrUnknownCircuit)
}

func TestValidatorRejectsMalformedProofBytes(t *testing.T) {
	require := require.New(t)
	registry := NewRegistry()
	_, _, err := registry.Setup(CircuitRangeCheck)
	require.NoError(err)

	validator := NewValidator(registry, nil, nil)
	_, err = validator.Verify(CircuitRangeCheck, []byte("not-a-real-proof"), NewRangeCheckAssignment(0, 10).Circuit())
	require.Error(err)
}

func TestNewSetMembershipAssignmentPadsShortSets(t *testing.T) {
	assignment := NewSetMembershipAssignment([]int64{1, 2, 3})
	circuit := assignment.Circuit().(*SetMembershipCircuit)
	require.Equal(t, frontend.Variable(int64(3)), circuit.Set[SetSize-1])
}
