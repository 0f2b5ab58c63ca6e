// history.go - Ring buffer of recent accumulator roots.

package merkle

// RootHistory keeps the last len(Roots) roots. Cursor is the slot the next Push
// writes; Count is the number of occupied slots and saturates at the capacity.
type RootHistory struct {
	Roots  []Hash
	Cursor uint32
	Count  uint32
}

// NewRootHistory returns an empty history holding at most capacity roots.
func NewRootHistory(capacity int) RootHistory {
	return RootHistory{Roots: make([]Hash, capacity)}
}

// Capacity returns the number of slots.
func (r *RootHistory) Capacity() int { return len(r.Roots) }

// Len returns the number of roots currently held.
func (r *RootHistory) Len() int { return int(r.Count) }

// Push records root as the newest entry, overwriting the oldest once full.
func (r *RootHistory) Push(root Hash) {
	n := uint32(len(r.Roots))
	if n == 0 {
		return
	}
	r.Roots[r.Cursor%n] = root
	r.Cursor = (r.Cursor + 1) % n
	if r.Count < n {
		r.Count++
	}
}

// Contains reports whether root is one of the retained roots.
// The zero hash is never contained.
func (r *RootHistory) Contains(root Hash) bool {
	if root.IsZero() {
		return false
	}
	for _, h := range r.Recent() {
		if h == root {
			return true
		}
	}
	return false
}

// Latest returns the most recently pushed root.
func (r *RootHistory) Latest() (Hash, bool) {
	n := uint32(len(r.Roots))
	if r.Count == 0 || n == 0 {
		return Hash{}, false
	}
	return r.Roots[(r.Cursor+n-1)%n], true
}

// Recent returns the retained roots, newest first.
func (r *RootHistory) Recent() []Hash {
	n := uint32(len(r.Roots))
	out := make([]Hash, 0, r.Count)
	for i := uint32(1); i <= r.Count; i++ {
		out = append(out, r.Roots[(r.Cursor+n-i)%n])
	}
	return out
}

// Clone returns a deep copy of r.
func (r RootHistory) Clone() RootHistory {
	roots := make([]Hash, len(r.Roots))
	copy(roots, r.Roots)
	return RootHistory{Roots: roots, Cursor: r.Cursor, Count: r.Count}
}
