// note.go - Deposit notes: the secrets behind a pool commitment.
//
// A note binds an amount to a nullifier and a secret. Its commitment is the leaf
// inserted into the pool accumulator; the nullifier hash is what a later
// withdrawal reveals.

package note

import (
	"crypto/rand"
	"encoding/binary"
	"hash"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"shieldedpool/internal/merkle"
)

// SecretSize keeps secrets below the BN254 scalar modulus.
const SecretSize = 31

const (
	prefix      = "shieldedpool-note-"
	encodedSize = 8 + 2*SecretSize
)

// Note is the private data a depositor keeps.
type Note struct {
	Amount    uint64
	Nullifier [SecretSize]byte
	Secret    [SecretSize]byte
}

// New draws a fresh nullifier and secret for amount.
func New(amount uint64) (*Note, error) {
	n := &Note{Amount: amount}
	if _, err := rand.Read(n.Nullifier[:]); err != nil {
		return nil, errors.Wrap(err, "read nullifier")
	}
	if _, err := rand.Read(n.Secret[:]); err != nil {
		return nil, errors.Wrap(err, "read secret")
	}
	return n, nil
}

// Commitment = MiMC(amount, nullifier, secret) over BN254.
func (n *Note) Commitment() merkle.Hash {
	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], n.Amount)
	return mimcHash(amount[:], n.Nullifier[:], n.Secret[:])
}

// NullifierHash = MiMC(nullifier).
func (n *Note) NullifierHash() merkle.Hash {
	return mimcHash(n.Nullifier[:])
}

// String encodes the note for backup.
func (n *Note) String() string {
	return prefix + hexutil.Encode(n.bytes())[2:]
}

func (n *Note) bytes() []byte {
	out := make([]byte, 0, encodedSize)
	out = binary.BigEndian.AppendUint64(out, n.Amount)
	out = append(out, n.Nullifier[:]...)
	return append(out, n.Secret[:]...)
}

func fromBytes(b []byte) (*Note, error) {
	if len(b) != encodedSize {
		return nil, errors.Errorf("note must be %d bytes, got %d", encodedSize, len(b))
	}
	n := &Note{Amount: binary.BigEndian.Uint64(b[:8])}
	copy(n.Nullifier[:], b[8:8+SecretSize])
	copy(n.Secret[:], b[8+SecretSize:])
	return n, nil
}

// Parse decodes a note produced by String.
func Parse(s string) (*Note, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, errors.New("not a shielded pool note")
	}
	raw, err := hexutil.Decode("0x" + strings.TrimPrefix(s, prefix))
	if err != nil {
		return nil, errors.Wrap(err, "decode note")
	}
	return fromBytes(raw)
}

// absorb feeds one canonical field element to h. MiMC only rejects blocks that
// are not canonical, so an error here is a bug.
func absorb(h hash.Hash, block []byte) {
	if _, err := h.Write(block); err != nil {
		panic(errors.Wrap(err, "note: absorb field element"))
	}
}

// mimcHash absorbs each input as one field element.
func mimcHash(inputs ...[]byte) merkle.Hash {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		var e fr.Element
		e.SetBytes(in)
		b := e.Bytes()
		absorb(h, b[:])
	}
	var out merkle.Hash
	copy(out[:], h.Sum(nil))
	return out
}
