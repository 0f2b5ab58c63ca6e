// hasher.go - Two-input node hashes for the accumulator.
//
// keccak256 and blake3 accept any 32-byte leaf. mimc and poseidon work over the
// BN254 scalar field so the same tree can be opened inside a gnark circuit; their
// leaves must be canonical field elements.

package merkle

import (
	"hash"
	"math/big"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Hasher names accepted by NewHasher.
const (
	HasherKeccak256 = "keccak256"
	HasherMiMC      = "mimc"
	HasherPoseidon  = "poseidon"
	HasherBlake3    = "blake3"
)

// DefaultHasher is used when a pool is configured without an explicit hasher.
const DefaultHasher = HasherKeccak256

// Hasher combines a left and a right child into their parent node.
// Hash must be deterministic and total over values accepted by ValidLeaf and over
// its own outputs.
type Hasher interface {
	Name() string
	Hash(left, right Hash) Hash
	ValidLeaf(leaf Hash) bool
}

var hashers = map[string]Hasher{
	HasherKeccak256: keccakHasher{},
	HasherMiMC:      mimcHasher{},
	HasherPoseidon:  poseidonHasher{},
	HasherBlake3:    blake3Hasher{},
}

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	if name == "" {
		name = DefaultHasher
	}
	h, ok := hashers[name]
	if !ok {
		return nil, errors.Errorf("unknown hasher %q (available: %v)", name, HasherNames())
	}
	return h, nil
}

// HasherNames lists the registered hasher names in sorted order.
func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type keccakHasher struct{}

func (keccakHasher) Name() string { return HasherKeccak256 }

func (keccakHasher) Hash(left, right Hash) Hash {
	return Hash(crypto.Keccak256Hash(left[:], right[:]))
}

func (keccakHasher) ValidLeaf(Hash) bool { return true }

type blake3Hasher struct{}

func (blake3Hasher) Name() string { return HasherBlake3 }

func (blake3Hasher) Hash(left, right Hash) Hash {
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return Hash(blake3.Sum256(buf[:]))
}

func (blake3Hasher) ValidLeaf(Hash) bool { return true }

// mimcHasher is MiMC over BN254 in Miyaguchi-Preneel mode, the same construction
// as gnark's std/hash/mimc, so native roots match in-circuit roots.
type mimcHasher struct{}

func (mimcHasher) Name() string { return HasherMiMC }

func (mimcHasher) Hash(left, right Hash) Hash {
	l, r := toField(left), toField(right)
	h := mimc.NewMiMC()
	absorb(h, l[:])
	absorb(h, r[:])
	return BytesToHash(h.Sum(nil))
}

// absorb feeds a canonical field element to a MiMC digest, which only rejects
// non-canonical blocks.
func absorb(h hash.Hash, block []byte) {
	if _, err := h.Write(block); err != nil {
		panic(errors.Wrap(err, "mimc: absorb field element"))
	}
}

func (mimcHasher) ValidLeaf(leaf Hash) bool { return inField(leaf) }

// poseidonHasher is the circom-compatible BN254 Poseidon with two inputs.
type poseidonHasher struct{}

func (poseidonHasher) Name() string { return HasherPoseidon }

func (poseidonHasher) Hash(left, right Hash) Hash {
	l, r := toField(left), toField(right)
	out, err := poseidon.Hash([]*big.Int{
		new(big.Int).SetBytes(l[:]),
		new(big.Int).SetBytes(r[:]),
	})
	if err != nil {
		// unreachable: both inputs were reduced into the field above
		panic(errors.Wrap(err, "poseidon"))
	}
	return BytesToHash(out.Bytes())
}

func (poseidonHasher) ValidLeaf(leaf Hash) bool { return inField(leaf) }

// inField reports whether h, read big-endian, is below the BN254 scalar modulus.
func inField(h Hash) bool {
	return new(big.Int).SetBytes(h[:]).Cmp(fr.Modulus()) < 0
}

// toField reduces h modulo the BN254 scalar field and returns its canonical
// big-endian encoding. Values that are already canonical are returned unchanged.
func toField(h Hash) [fr.Bytes]byte {
	var e fr.Element
	e.SetBytes(h[:])
	return e.Bytes()
}
