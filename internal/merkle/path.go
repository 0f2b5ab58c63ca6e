// path.go - Full-tree helpers for witness construction off-chain.
//
// These rebuild levels from the complete leaf list and are meant for indexers and
// provers, never for the deposit path itself.

package merkle

import (
	"github.com/pkg/errors"
)

// ErrIndexOutOfRange is returned when a path is requested for a leaf that was never inserted.
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// ComputeRoot rebuilds the root over leaves, padding with empty subtrees.
func (a *Accumulator) ComputeRoot(leaves []Hash) (Hash, error) {
	if uint64(len(leaves)) > a.Capacity() {
		return Hash{}, ErrTreeFull
	}
	layer := append([]Hash(nil), leaves...)
	for d := 0; d < a.depth; d++ {
		layer = a.nextLayer(layer, d)
	}
	if len(layer) == 0 {
		return a.EmptyRoot(), nil
	}
	return layer[0], nil
}

// BuildPath returns the sibling of every node on the path from leaves[index] to
// the root, bottom-up.
func (a *Accumulator) BuildPath(leaves []Hash, index uint64) ([]Hash, error) {
	if index >= uint64(len(leaves)) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, %d leaves", index, len(leaves))
	}
	if uint64(len(leaves)) > a.Capacity() {
		return nil, ErrTreeFull
	}
	siblings := make([]Hash, a.depth)
	layer := append([]Hash(nil), leaves...)
	for d := 0; d < a.depth; d++ {
		sib := index ^ 1
		if sib < uint64(len(layer)) {
			siblings[d] = layer[sib]
		} else {
			siblings[d] = a.zeros[d]
		}
		layer = a.nextLayer(layer, d)
		index >>= 1
	}
	return siblings, nil
}

// VerifyPath reports whether leaf at index hashes up to root through siblings.
func (a *Accumulator) VerifyPath(leaf Hash, index uint64, siblings []Hash, root Hash) bool {
	if len(siblings) != a.depth || index >= a.Capacity() {
		return false
	}
	current := leaf
	for _, sib := range siblings {
		if index&1 == 0 {
			current = a.hasher.Hash(current, sib)
		} else {
			current = a.hasher.Hash(sib, current)
		}
		index >>= 1
	}
	return current == root
}

func (a *Accumulator) nextLayer(layer []Hash, level int) []Hash {
	if len(layer)%2 == 1 {
		layer = append(layer, a.zeros[level])
	}
	next := make([]Hash, len(layer)/2)
	for i := range next {
		next[i] = a.hasher.Hash(layer[2*i], layer[2*i+1])
	}
	return next
}
