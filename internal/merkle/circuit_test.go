package merkle

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
)

const circuitDepth = 4

func mimcTree(c *qt.C, n int) (*Accumulator, []Hash, RootHistory) {
	h, err := NewHasher(HasherMiMC)
	c.Assert(err, qt.IsNil)
	acc, err := NewAccumulator(h, circuitDepth)
	c.Assert(err, qt.IsNil)

	state := NewTreeState(circuitDepth)
	history := NewRootHistory(8)
	var leaves []Hash
	for i := 0; i < n; i++ {
		leaf := leafN(byte(i + 10))
		leaves = append(leaves, leaf)
		root, err := acc.Insert(&state, leaf)
		c.Assert(err, qt.IsNil)
		history.Push(root)
	}
	return acc, leaves, history
}

func TestInclusionCircuit(t *testing.T) {
	c := qt.New(t)
	acc, leaves, history := mimcTree(c, 6)
	root, _ := history.Latest()

	siblings, err := acc.BuildPath(leaves, 3)
	c.Assert(err, qt.IsNil)

	assert := test.NewAssert(t)
	valid := InclusionAssignment(leaves[3], 3, siblings, root)
	assert.ProverSucceeded(NewInclusionCircuit(circuitDepth), valid,
		test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16), test.NoFuzzing(), test.NoSerializationChecks())

	wrongIndex := InclusionAssignment(leaves[3], 2, siblings, root)
	assert.ProverFailed(NewInclusionCircuit(circuitDepth), wrongIndex,
		test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16), test.NoFuzzing(), test.NoSerializationChecks())
}

// A proof built against a root that was later superseded still verifies, and the
// root it commits to is accepted as long as the history retains it.
func TestInclusionProofAgainstHistoricalRoot(t *testing.T) {
	c := qt.New(t)
	acc, leaves, history := mimcTree(c, 3)
	proofRoot, _ := history.Latest()
	siblings, err := acc.BuildPath(leaves, 1)
	c.Assert(err, qt.IsNil)

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, NewInclusionCircuit(circuitDepth))
	c.Assert(err, qt.IsNil)
	pk, vk, err := groth16.Setup(ccs)
	c.Assert(err, qt.IsNil)

	witness, err := frontend.NewWitness(InclusionAssignment(leaves[1], 1, siblings, proofRoot), ecc.BN254.ScalarField())
	c.Assert(err, qt.IsNil)
	proof, err := groth16.Prove(ccs, pk, witness)
	c.Assert(err, qt.IsNil)

	// other deposits land between proving and settlement
	state := NewTreeState(circuitDepth)
	for _, l := range leaves {
		_, err := acc.Insert(&state, l)
		c.Assert(err, qt.IsNil)
	}
	for i := 0; i < 4; i++ {
		root, err := acc.Insert(&state, leafN(byte(100+i)))
		c.Assert(err, qt.IsNil)
		history.Push(root)
	}
	latest, _ := history.Latest()
	c.Assert(latest, qt.Not(qt.Equals), proofRoot)
	c.Assert(history.Contains(proofRoot), qt.IsTrue)

	public, err := witness.Public()
	c.Assert(err, qt.IsNil)
	c.Assert(groth16.Verify(proof, vk, public), qt.IsNil)
}
