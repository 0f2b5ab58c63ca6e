// seal.go - Hand a note to a recipient: BN254 Diffie-Hellman plus a MiMC mask chain.

package note

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"shieldedpool/internal/merkle"
)

// ErrNotRecipient is returned when a sealed note does not open under the key.
var ErrNotRecipient = errors.New("note: sealed note is not addressed to this key")

// KeyPair is a BN254 G1 keypair used to receive notes.
type KeyPair struct {
	Sk fr.Element
	Pk bn254.G1Affine
}

// GenerateKeyPair draws a random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := kp.Sk.SetRandom(); err != nil {
		return nil, errors.Wrap(err, "sample scalar")
	}
	_, _, g1, _ := bn254.Generators()
	kp.Pk.ScalarMultiplication(&g1, kp.Sk.BigInt(new(big.Int)))
	return &kp, nil
}

// Sealed is a note encrypted to a recipient. Commitment is public so the
// recipient can match it against pool deposits.
type Sealed struct {
	Ephemeral  hexutil.Bytes `json:"ephemeral"`
	Ciphertext hexutil.Bytes `json:"ciphertext"`
	Commitment merkle.Hash   `json:"commitment"`
}

// Seal encrypts n to recipient.
func Seal(n *Note, recipient *bn254.G1Affine) (*Sealed, error) {
	eph, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	var shared bn254.G1Affine
	shared.ScalarMultiplication(recipient, eph.Sk.BigInt(new(big.Int)))

	epk := eph.Pk.Bytes()
	return &Sealed{
		Ephemeral:  epk[:],
		Ciphertext: xorMask(n.bytes(), &shared),
		Commitment: n.Commitment(),
	}, nil
}

// Open decrypts s with kp. It fails with ErrNotRecipient when the plaintext
// does not reproduce the advertised commitment.
func Open(s *Sealed, kp *KeyPair) (*Note, error) {
	var epk bn254.G1Affine
	if _, err := epk.SetBytes(s.Ephemeral); err != nil {
		return nil, errors.Wrap(err, "decode ephemeral key")
	}
	var shared bn254.G1Affine
	shared.ScalarMultiplication(&epk, kp.Sk.BigInt(new(big.Int)))

	n, err := fromBytes(xorMask(s.Ciphertext, &shared))
	if err != nil {
		return nil, ErrNotRecipient
	}
	if n.Commitment() != s.Commitment {
		return nil, ErrNotRecipient
	}
	return n, nil
}

// xorMask xors data with H(x, y), H(H(x, y)), ... of the shared point.
func xorMask(data []byte, shared *bn254.G1Affine) []byte {
	x := shared.X.Bytes()
	y := shared.Y.Bytes()
	mask := mimcHash(x[:], y[:])

	h := mimc.NewMiMC()
	out := make([]byte, len(data))
	for i := range data {
		if i > 0 && i%merkle.HashSize == 0 {
			h.Reset()
			absorb(h, mask[:])
			copy(mask[:], h.Sum(nil))
		}
		out[i] = data[i] ^ mask[i%merkle.HashSize]
	}
	return out
}
