// Package proof implements PayAttn's zero-knowledge proof layer: a small
// registry of Groth16 circuits over the BN254 scalar field and a
// read-only validator that checks proofs against cached verifying keys.
// PayAttn never needs to prove anything itself (proving happens in the
// advertiser/user's own client); the service side only ever verifies.
package proof

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
)

// CurveID is the scalar field every PayAttn circuit is compiled over.
const CurveID = ecc.BN254

// CircuitID names one of the registered circuit definitions.
type CircuitID string

const (
	// CircuitAgeRange proves a private age lies within [Min, Max] without
	// revealing the age itself.
	CircuitAgeRange CircuitID = "age_range"
	// CircuitRangeCheck proves a private value lies within [Min, Max],
	// the general-purpose form age_range specializes.
	CircuitRangeCheck CircuitID = "range_check"
	// CircuitSetMembership proves a private value is one of a public set
	// of allowed values (e.g. an allow-listed creative category) without
	// revealing which member it is.
	CircuitSetMembership CircuitID = "set_membership"
)

// AgeRangeCircuit proves Min <= Age <= Max for a private Age.
type AgeRangeCircuit struct {
	Age frontend.Variable `gnark:",secret"`
	Min frontend.Variable `gnark:",public"`
	Max frontend.Variable `gnark:",public"`
}

// Define constrains Age to the closed interval [Min, Max].
func (c *AgeRangeCircuit) Define(api frontend.API) error {
	api.AssertIsLessOrEqual(c.Min, c.Age)
	api.AssertIsLessOrEqual(c.Age, c.Max)
	return nil
}

// RangeCheckCircuit is AgeRangeCircuit's general-purpose twin: it proves a
// private value lies within a public range without tying the field names
// to an age.
type RangeCheckCircuit struct {
	Value frontend.Variable `gnark:",secret"`
	Min   frontend.Variable `gnark:",public"`
	Max   frontend.Variable `gnark:",public"`
}

// Define constrains Value to the closed interval [Min, Max].
func (c *RangeCheckCircuit) Define(api frontend.API) error {
	api.AssertIsLessOrEqual(c.Min, c.Value)
	api.AssertIsLessOrEqual(c.Value, c.Max)
	return nil
}

// SetSize is the fixed arity of SetMembershipCircuit's public set. Circuits
// compiled with gnark must have a fixed shape, so PayAttn pads smaller
// sets by repeating the last element.
const SetSize = 8

// SetMembershipCircuit proves a private Value equals one member of a fixed
// public Set, without revealing which index matched.
type SetMembershipCircuit struct {
	Value frontend.Variable    `gnark:",secret"`
	Set   [SetSize]frontend.Variable `gnark:",public"`
}

// Define constrains the product of (Value - Set[i]) across every member to
// be zero, which holds exactly when Value matches some member.
func (c *SetMembershipCircuit) Define(api frontend.API) error {
	acc := api.Sub(c.Value, c.Set[0])
	for i := 1; i < SetSize; i++ {
		diff := api.Sub(c.Value, c.Set[i])
		acc = api.Mul(acc, diff)
	}
	api.AssertIsEqual(acc, 0)
	return nil
}

// newCircuit returns a zero-valued instance of the named circuit, used
// both at compile time and to build the public-only witness for
// verification.
func newCircuit(id CircuitID) (frontend.Circuit, error) {
	switch id {
	case CircuitAgeRange:
		return &AgeRangeCircuit{}, nil
	case CircuitRangeCheck:
		return &RangeCheckCircuit{}, nil
	case CircuitSetMembership:
		return &SetMembershipCircuit{}, nil
	default:
		return nil, ErrUnknownCircuit
	}
}

// PublicAssignment carries just the public inputs of some circuit, letting
// callers outside this package (the oracle, the HTTP API) build a
// verification witness without importing the concrete circuit types.
type PublicAssignment interface {
	Circuit() frontend.Circuit
}

type ageRangeAssignment struct{ min, max int64 }

// NewAgeRangeAssignment builds the public inputs for CircuitAgeRange.
func NewAgeRangeAssignment(min, max int64) PublicAssignment {
	return ageRangeAssignment{min: min, max: max}
}

func (a ageRangeAssignment) Circuit() frontend.Circuit {
	return &AgeRangeCircuit{Min: a.min, Max: a.max}
}

type rangeCheckAssignment struct{ min, max int64 }

// NewRangeCheckAssignment builds the public inputs for CircuitRangeCheck.
func NewRangeCheckAssignment(min, max int64) PublicAssignment {
	return rangeCheckAssignment{min: min, max: max}
}

func (a rangeCheckAssignment) Circuit() frontend.Circuit {
	return &RangeCheckCircuit{Min: a.min, Max: a.max}
}

type setMembershipAssignment struct{ set [SetSize]int64 }

// NewSetMembershipAssignment builds the public inputs for
// CircuitSetMembership. Sets shorter than SetSize are padded by repeating
// their last element.
func NewSetMembershipAssignment(set []int64) PublicAssignment {
	var padded [SetSize]int64
	for i := range padded {
		if i < len(set) {
			padded[i] = set[i]
		} else if len(set) > 0 {
			padded[i] = set[len(set)-1]
		}
	}
	return setMembershipAssignment{set: padded}
}

func (a setMembershipAssignment) Circuit() frontend.Circuit {
	c := &SetMembershipCircuit{}
	for i, v := range a.set {
		c.Set[i] = v
	}
	return c
}
