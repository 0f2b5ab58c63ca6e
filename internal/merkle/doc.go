// Package merkle implements the commitment accumulator of the shielded pool.
//
// Overview:
//   - Accumulator: fixed-depth, append-only binary hash tree that keeps only the
//     filled left subtree of every level, so each insertion costs one hash per level
//   - RootHistory: fixed-capacity ring of the most recent roots; withdrawal proofs
//     built against any root still in the ring are accepted
//   - Hasher: the two-input node hash (keccak256, MiMC, Poseidon or BLAKE3)
//   - BuildPath / VerifyPath: off-chain witness helpers over the full leaf list
//   - InclusionCircuit: gnark gadget proving a leaf hashes to a public root with MiMC
//
// The accumulator never stores leaves. Empty subtrees at depth d hash to the
// constant Zero(d), with Zero(0) the all-zero leaf.
package merkle
