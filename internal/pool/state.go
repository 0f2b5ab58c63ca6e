// state.go - Pool State and its fixed binary layout.

package pool

import (
	"encoding/binary"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/runtime"
)

// Layout offsets. All integers are little-endian.
const (
	offInitialized = 0
	offDepth       = 1
	offHistoryCap  = 2
	offCursor      = 4
	offHistoryLen  = 8
	offLeafCount   = 16
	headerSize     = 24
)

// Size returns the account data length a pool of the given shape needs.
func Size(depth, historySize int) int {
	return headerSize + merkle.HashSize*depth + merkle.HashSize*historySize
}

// State is the decoded pool account.
type State struct {
	Initialized bool
	Tree        merkle.TreeState
	History     merkle.RootHistory
}

// New returns an initialized, empty pool state.
func New(depth, historySize int) (*State, error) {
	if depth < 1 || depth > merkle.MaxDepth {
		return nil, runtime.ErrInvalidArgument
	}
	if historySize < 1 || historySize > MaxHistorySize {
		return nil, runtime.ErrInvalidArgument
	}
	return &State{
		Initialized: true,
		Tree:        merkle.NewTreeState(depth),
		History:     merkle.NewRootHistory(historySize),
	}, nil
}

// Depth of the accumulator.
func (s *State) Depth() int { return len(s.Tree.FilledSubtrees) }

// Size is the encoded length of s.
func (s *State) Size() int { return Size(s.Depth(), s.History.Capacity()) }

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		Initialized: s.Initialized,
		Tree:        s.Tree.Clone(),
		History:     s.History.Clone(),
	}
}

// KnownRoot reports whether root is one of the retained roots.
func (s *State) KnownRoot(root merkle.Hash) bool {
	return s.History.Contains(root)
}

// CurrentRoot is the newest recorded root, or the empty-tree root when no
// deposit has been made yet.
func (s *State) CurrentRoot(acc *merkle.Accumulator) merkle.Hash {
	if root, ok := s.History.Latest(); ok {
		return root
	}
	return acc.EmptyRoot()
}

// Load decodes account data. Data whose initialized flag is clear yields
// ErrUninitializedAccount; a malformed header yields ErrInvalidAccountData.
func Load(data []byte) (*State, error) {
	if len(data) < headerSize || data[offInitialized] == 0 {
		return nil, runtime.ErrUninitializedAccount
	}
	if data[offInitialized] != 1 {
		return nil, runtime.ErrInvalidAccountData
	}
	depth := int(data[offDepth])
	historyCap := int(binary.LittleEndian.Uint16(data[offHistoryCap:]))
	if depth < 1 || depth > merkle.MaxDepth || historyCap < 1 || historyCap > MaxHistorySize {
		return nil, runtime.ErrInvalidAccountData
	}
	if len(data) < Size(depth, historyCap) {
		return nil, runtime.ErrAccountDataTooSmall
	}

	s := &State{
		Initialized: true,
		Tree:        merkle.NewTreeState(depth),
		History:     merkle.NewRootHistory(historyCap),
	}
	s.History.Cursor = binary.LittleEndian.Uint32(data[offCursor:])
	s.History.Count = binary.LittleEndian.Uint32(data[offHistoryLen:])
	if int(s.History.Cursor) >= historyCap || int(s.History.Count) > historyCap {
		return nil, runtime.ErrInvalidAccountData
	}
	s.Tree.LeafCount = binary.LittleEndian.Uint64(data[offLeafCount:])

	off := headerSize
	for i := range s.Tree.FilledSubtrees {
		copy(s.Tree.FilledSubtrees[i][:], data[off:])
		off += merkle.HashSize
	}
	for i := range s.History.Roots {
		copy(s.History.Roots[i][:], data[off:])
		off += merkle.HashSize
	}
	return s, nil
}

// Store encodes s into data in place. data must be at least s.Size() bytes;
// trailing bytes are left alone.
func (s *State) Store(data []byte) error {
	if len(data) < s.Size() {
		return runtime.ErrAccountDataTooSmall
	}
	if s.Initialized {
		data[offInitialized] = 1
	} else {
		data[offInitialized] = 0
	}
	data[offDepth] = uint8(s.Depth())
	binary.LittleEndian.PutUint16(data[offHistoryCap:], uint16(s.History.Capacity()))
	binary.LittleEndian.PutUint32(data[offCursor:], s.History.Cursor)
	binary.LittleEndian.PutUint32(data[offHistoryLen:], s.History.Count)
	binary.LittleEndian.PutUint32(data[12:], 0)
	binary.LittleEndian.PutUint64(data[offLeafCount:], s.Tree.LeafCount)

	off := headerSize
	for _, h := range s.Tree.FilledSubtrees {
		copy(data[off:], h[:])
		off += merkle.HashSize
	}
	for _, h := range s.History.Roots {
		copy(data[off:], h[:])
		off += merkle.HashSize
	}
	return nil
}
