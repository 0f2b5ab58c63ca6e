// indexer.go - Off-ledger log of deposited commitments.
//
// The pool keeps only the accumulator frontier, so clients that need a Merkle
// path for a withdrawal proof rebuild the tree from this log.

package indexer

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/transactions/deposit"
)

var (
	ErrOutOfOrder   = errors.New("indexer: receipt is not the next leaf")
	ErrRootMismatch = errors.New("indexer: replayed root differs from ledger")
)

var commitmentPrefix = []byte("cm_")

// Entry is one indexed deposit.
type Entry struct {
	Position   uint64
	Commitment merkle.Hash
	Root       merkle.Hash
}

// Indexer persists commitments by position and mirrors the accumulator.
type Indexer struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	acc    *merkle.Accumulator
	tree   merkle.TreeState
	leaves []merkle.Hash
	root   merkle.Hash
}

// Open opens or creates the log at path (in memory when path is empty) and
// replays it.
func Open(path string, acc *merkle.Accumulator) (*Indexer, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open commitment index")
	}
	ix := &Indexer{db: db, acc: acc, tree: merkle.NewTreeState(acc.Depth()), root: acc.EmptyRoot()}
	if err := ix.load(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Indexer) load() error {
	iter := ix.db.NewIterator(util.BytesPrefix(commitmentPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		e, err := decodeEntry(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := ix.apply(e); err != nil {
			return errors.Wrapf(err, "replay position %d", e.Position)
		}
	}
	return errors.Wrap(iter.Error(), "iterate commitment index")
}

// extend checks that e continues the log and returns the frontier after it.
func (ix *Indexer) extend(e Entry) (merkle.TreeState, error) {
	if e.Position != ix.tree.LeafCount {
		return merkle.TreeState{}, ErrOutOfOrder
	}
	next := ix.tree.Clone()
	root, err := ix.acc.Insert(&next, e.Commitment)
	if err != nil {
		return merkle.TreeState{}, err
	}
	if root != e.Root {
		return merkle.TreeState{}, ErrRootMismatch
	}
	return next, nil
}

func (ix *Indexer) apply(e Entry) error {
	next, err := ix.extend(e)
	if err != nil {
		return err
	}
	ix.tree = next
	ix.leaves = append(ix.leaves, e.Commitment)
	ix.root = e.Root
	return nil
}

// Record appends the deposit described by r. Receipts must arrive in leaf order
// and carry the root the accumulator produces.
func (ix *Indexer) Record(r *deposit.Receipt) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := Entry{Position: r.LeafIndex, Commitment: r.Commitment, Root: r.Root}
	if _, err := ix.extend(e); err != nil {
		return err
	}
	if err := ix.db.Put(commitmentKey(e.Position), encodeValue(e), nil); err != nil {
		return errors.Wrap(err, "store commitment")
	}
	return ix.apply(e)
}

// Count is the number of indexed commitments.
func (ix *Indexer) Count() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.LeafCount
}

// Root is the accumulator root over every indexed commitment.
func (ix *Indexer) Root() merkle.Hash {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.root
}

// Commitments returns a copy of the indexed commitments in leaf order.
func (ix *Indexer) Commitments() []merkle.Hash {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]merkle.Hash(nil), ix.leaves...)
}

// Entries lists the persisted log.
func (ix *Indexer) Entries() ([]Entry, error) {
	iter := ix.db.NewIterator(util.BytesPrefix(commitmentPrefix), nil)
	defer iter.Release()

	var out []Entry
	for iter.Next() {
		e, err := decodeEntry(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate commitment index")
	}
	return out, nil
}

// Path returns the sibling path of leaf index against the current root.
func (ix *Indexer) Path(index uint64) (leaf merkle.Hash, siblings []merkle.Hash, root merkle.Hash, err error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if index >= uint64(len(ix.leaves)) {
		return leaf, nil, root, merkle.ErrIndexOutOfRange
	}
	siblings, err = ix.acc.BuildPath(ix.leaves, index)
	if err != nil {
		return leaf, nil, root, err
	}
	return ix.leaves[index], siblings, ix.root, nil
}

// Verify checks the index against the ledger's Pool State: same leaf count,
// same frontier, and the ledger's newest root equals the replayed root.
func (ix *Indexer) Verify(st *pool.State) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if st.Tree.LeafCount != ix.tree.LeafCount {
		return errors.Wrapf(ErrRootMismatch, "ledger has %d leaves, index has %d", st.Tree.LeafCount, ix.tree.LeafCount)
	}
	if st.Depth() != ix.acc.Depth() {
		return errors.Wrapf(ErrRootMismatch, "ledger depth %d, index depth %d", st.Depth(), ix.acc.Depth())
	}
	for d, h := range st.Tree.FilledSubtrees {
		if h != ix.tree.FilledSubtrees[d] {
			return errors.Wrapf(ErrRootMismatch, "frontier differs at level %d", d)
		}
	}
	if st.CurrentRoot(ix.acc) != ix.root {
		return ErrRootMismatch
	}
	return nil
}

// Close closes the underlying database.
func (ix *Indexer) Close() error {
	return ix.db.Close()
}

func commitmentKey(position uint64) []byte {
	return []byte(fmt.Sprintf("cm_%020d", position))
}

func encodeValue(e Entry) []byte {
	out := make([]byte, 0, 2*merkle.HashSize)
	out = append(out, e.Commitment[:]...)
	return append(out, e.Root[:]...)
}

func decodeEntry(key, value []byte) (Entry, error) {
	var e Entry
	pos, err := strconv.ParseUint(string(key[len(commitmentPrefix):]), 10, 64)
	if err != nil {
		return e, errors.Wrapf(err, "parse key %q", key)
	}
	e.Position = pos
	if len(value) != 2*merkle.HashSize {
		return e, errors.Errorf("commitment record %d has %d bytes", e.Position, len(value))
	}
	copy(e.Commitment[:], value[:merkle.HashSize])
	copy(e.Root[:], value[merkle.HashSize:])
	return e, nil
}
