package proof

import (
	"errors"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// ErrUnknownCircuit is returned when a caller names a circuit id the
// registry has no definition for.
var ErrUnknownCircuit = errors.New("proof: unknown circuit id")

// Registry holds the verifying key for every registered circuit (and, for
// circuits registered through Setup, the compiled constraint system),
// cached in memory once Setup or LoadVerifyingKey has run, so repeated
// verifications never recompile anything.
type Registry struct {
	mu  sync.RWMutex
	vks map[CircuitID]groth16.VerifyingKey
	ccs map[CircuitID]interface{} // kept for completeness; not needed by Verify
}

// NewRegistry creates an empty registry. Entries are populated by either
// Setup (development: generates a fresh trusted setup in-process) or
// LoadVerifyingKey (production: imports a verifying key produced by a real
// trusted setup ceremony out of band).
func NewRegistry() *Registry {
	return &Registry{
		vks: make(map[CircuitID]groth16.VerifyingKey),
		ccs: make(map[CircuitID]interface{}),
	}
}

// Setup compiles the named circuit and runs Groth16's (insecure,
// development-only) setup to produce a proving and verifying key, caching
// the verifying key for later Verify calls. Production deployments should
// call LoadVerifyingKey with the output of a real ceremony instead.
func (r *Registry) Setup(id CircuitID) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	circuit, err := newCircuit(id)
	if err != nil {
		return nil, nil, err
	}
	ccs, err := frontend.Compile(CurveID.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.vks[id] = vk
	r.ccs[id] = ccs
	r.mu.Unlock()

	return pk, vk, nil
}

// LoadVerifyingKey imports a verifying key serialized by a prior Groth16
// setup and caches it under id, for production use where the trusted
// setup ran out of band.
func (r *Registry) LoadVerifyingKey(id CircuitID, data io.Reader) error {
	if _, err := newCircuit(id); err != nil {
		return err
	}
	vk := groth16.NewVerifyingKey(CurveID)
	if _, err := vk.ReadFrom(data); err != nil {
		return err
	}
	r.mu.Lock()
	r.vks[id] = vk
	r.mu.Unlock()
	return nil
}

// VerifyingKey returns the cached verifying key for id, if any.
func (r *Registry) VerifyingKey(id CircuitID) (groth16.VerifyingKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vk, ok := r.vks[id]
	return vk, ok
}

// keeps the gnark-crypto/ecc import referenced in this file; the curve
// callers use is the exported CurveID in circuits.go.
var _ = ecc.BN254
