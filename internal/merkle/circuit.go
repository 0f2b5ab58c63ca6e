// circuit.go - gnark gadget opening the accumulator inside a proof.
//
// The circuit hashes with std/hash/mimc, which matches the native "mimc" hasher
// over BN254. Circuits must be compiled for ecc.BN254.

package merkle

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// InclusionCircuit proves that Leaf sits at Index in a tree whose root is Root.
// Root is the only public input; a verifier accepts the proof when Root is in
// the pool's root history.
type InclusionCircuit struct {
	Root     frontend.Variable `gnark:",public"`
	Leaf     frontend.Variable
	Index    frontend.Variable
	Siblings []frontend.Variable
}

// NewInclusionCircuit allocates a circuit shape for a tree of the given depth.
func NewInclusionCircuit(depth int) *InclusionCircuit {
	return &InclusionCircuit{Siblings: make([]frontend.Variable, depth)}
}

// Define implements frontend.Circuit.
func (c *InclusionCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	bits := api.ToBinary(c.Index, len(c.Siblings))

	current := c.Leaf
	for d, sib := range c.Siblings {
		// bit set: current node is the right child
		left := api.Select(bits[d], sib, current)
		right := api.Select(bits[d], current, sib)
		h.Reset()
		h.Write(left, right)
		current = h.Sum()
	}
	api.AssertIsEqual(current, c.Root)
	return nil
}

// InclusionAssignment builds a full witness for NewInclusionCircuit(len(siblings)).
func InclusionAssignment(leaf Hash, index uint64, siblings []Hash, root Hash) *InclusionCircuit {
	w := &InclusionCircuit{
		Root:     new(big.Int).SetBytes(root[:]),
		Leaf:     new(big.Int).SetBytes(leaf[:]),
		Index:    new(big.Int).SetUint64(index),
		Siblings: make([]frontend.Variable, len(siblings)),
	}
	for i, s := range siblings {
		w.Siblings[i] = new(big.Int).SetBytes(s[:])
	}
	return w
}
