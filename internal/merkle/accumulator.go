// accumulator.go - Fixed-depth incremental Merkle tree.
//
// Only the filled left subtree of each level is kept, so the state is
// depth*32 bytes plus a leaf counter no matter how many leaves were inserted.

package merkle

import (
	"github.com/pkg/errors"
)

// MaxDepth bounds the tree depth so the leaf counter and leaf indices fit in 32 bits.
const MaxDepth = 32

var (
	// ErrTreeFull is returned when an insertion would bring the leaf count to 2^depth.
	ErrTreeFull = errors.New("merkle: tree is full")
	// ErrDepthMismatch is returned when a TreeState does not match the accumulator depth.
	ErrDepthMismatch = errors.New("merkle: tree state depth mismatch")
)

// TreeState is the persistent part of the accumulator.
type TreeState struct {
	LeafCount uint64
	// FilledSubtrees[d] is the most recent left node written at level d.
	FilledSubtrees []Hash
}

// NewTreeState returns an empty state for a tree of the given depth.
func NewTreeState(depth int) TreeState {
	return TreeState{FilledSubtrees: make([]Hash, depth)}
}

// Clone returns a deep copy of t.
func (t TreeState) Clone() TreeState {
	filled := make([]Hash, len(t.FilledSubtrees))
	copy(filled, t.FilledSubtrees)
	return TreeState{LeafCount: t.LeafCount, FilledSubtrees: filled}
}

// Accumulator inserts leaves into a TreeState and produces roots.
// It is immutable and safe to share.
type Accumulator struct {
	hasher Hasher
	depth  int
	zeros  []Hash // zeros[d] is the root of an empty subtree of height d
}

// NewAccumulator precomputes the empty subtree constants for depth levels.
func NewAccumulator(hasher Hasher, depth int) (*Accumulator, error) {
	if hasher == nil {
		return nil, errors.New("merkle: nil hasher")
	}
	if depth < 1 || depth > MaxDepth {
		return nil, errors.Errorf("merkle: depth %d out of range [1, %d]", depth, MaxDepth)
	}
	zeros := make([]Hash, depth+1)
	for d := 1; d <= depth; d++ {
		zeros[d] = hasher.Hash(zeros[d-1], zeros[d-1])
	}
	return &Accumulator{hasher: hasher, depth: depth, zeros: zeros}, nil
}

// Hasher returns the node hash in use.
func (a *Accumulator) Hasher() Hasher { return a.hasher }

// Depth returns the number of levels between a leaf and the root.
func (a *Accumulator) Depth() int { return a.depth }

// Capacity returns the maximum number of leaves the tree accepts: 2^depth - 1.
// The leaf count never reaches 2^depth.
func (a *Accumulator) Capacity() uint64 {
	return uint64(1)<<uint(a.depth) - 1
}

// Zero returns the root of an empty subtree of the given height.
func (a *Accumulator) Zero(height int) Hash { return a.zeros[height] }

// EmptyRoot returns the root of a tree with no leaves.
func (a *Accumulator) EmptyRoot() Hash { return a.zeros[a.depth] }

// Insert appends leaf at index t.LeafCount, updates t in place and returns the
// new root. t is left untouched when an error is returned.
func (a *Accumulator) Insert(t *TreeState, leaf Hash) (Hash, error) {
	if len(t.FilledSubtrees) != a.depth {
		return Hash{}, errors.Wrapf(ErrDepthMismatch, "state has %d levels, accumulator %d", len(t.FilledSubtrees), a.depth)
	}
	if t.LeafCount >= a.Capacity() {
		return Hash{}, errors.Wrapf(ErrTreeFull, "%d leaves at depth %d", t.LeafCount, a.depth)
	}

	index := t.LeafCount
	current := leaf
	for d := 0; d < a.depth; d++ {
		if index&1 == 0 {
			// left child: the right sibling is still empty
			t.FilledSubtrees[d] = current
			current = a.hasher.Hash(current, a.zeros[d])
		} else {
			current = a.hasher.Hash(t.FilledSubtrees[d], current)
		}
		index >>= 1
	}
	t.LeafCount++
	return current, nil
}
