// transaction.go - Signed transactions: instructions, account metas and ed25519 signatures.

package runtime

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/pkg/errors"
)

// AccountMeta names an account an instruction touches and how.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Signer returns a writable signer meta.
func Signer(key Pubkey) AccountMeta { return AccountMeta{Pubkey: key, IsSigner: true, IsWritable: true} }

// Writable returns a writable non-signer meta.
func Writable(key Pubkey) AccountMeta { return AccountMeta{Pubkey: key, IsWritable: true} }

// Readonly returns a read-only non-signer meta.
func Readonly(key Pubkey) AccountMeta { return AccountMeta{Pubkey: key} }

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID Pubkey        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      hexutil.Bytes `json:"data"`
}

// Signature binds a signer key to its ed25519 signature over the message.
type Signature struct {
	Signer    Pubkey        `json:"signer"`
	Signature hexutil.Bytes `json:"signature"`
}

// Transaction is an ordered list of instructions executed all-or-nothing.
type Transaction struct {
	Instructions []Instruction `json:"instructions"`
	Nonce        uint64        `json:"nonce"`
	Signatures   []Signature   `json:"signatures"`
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(nonce uint64, ixs ...Instruction) *Transaction {
	return &Transaction{Instructions: ixs, Nonce: nonce}
}

// Message returns the canonical bytes covered by signatures.
func (tx *Transaction) Message() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, tx.Nonce)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tx.Instructions)))
	for _, ix := range tx.Instructions {
		buf = append(buf, ix.ProgramID[:]...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
		for _, m := range ix.Accounts {
			var flags byte
			if m.IsSigner {
				flags |= 1
			}
			if m.IsWritable {
				flags |= 2
			}
			buf = append(buf, m.Pubkey[:]...)
			buf = append(buf, flags)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// RequiredSigners lists, in first-seen order, every key marked as signer.
func (tx *Transaction) RequiredSigners() []Pubkey {
	seen := make(map[Pubkey]bool)
	var out []Pubkey
	for _, ix := range tx.Instructions {
		for _, m := range ix.Accounts {
			if m.IsSigner && !seen[m.Pubkey] {
				seen[m.Pubkey] = true
				out = append(out, m.Pubkey)
			}
		}
	}
	return out
}

// Sign appends a signature by each key.
func (tx *Transaction) Sign(keys ...ed25519.PrivateKey) {
	msg := tx.Message()
	for _, k := range keys {
		var signer Pubkey
		copy(signer[:], k.Public().(ed25519.PublicKey))
		tx.Signatures = append(tx.Signatures, Signature{
			Signer:    signer,
			Signature: ed25519.Sign(k, msg),
		})
	}
}

// ID is the sha256 of the signed message. Replay protection keys on it, so
// re-signing or reordering signatures does not yield a new transaction.
func (tx *Transaction) ID() []byte {
	id := sha256.Sum256(tx.Message())
	return id[:]
}

// Verify checks that every required signer signed the message exactly once
// and that nobody else did.
func (tx *Transaction) Verify() error {
	if len(tx.Instructions) == 0 {
		return errors.New("transaction has no instructions")
	}
	required := make(map[Pubkey]bool)
	for _, key := range tx.RequiredSigners() {
		required[key] = true
	}
	msg := tx.Message()
	signed := make(map[Pubkey]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if !required[s.Signer] {
			return errors.Wrapf(ErrSignatureFailure, "unexpected signature by %s", s.Signer)
		}
		if signed[s.Signer] {
			return errors.Wrapf(ErrSignatureFailure, "duplicate signature by %s", s.Signer)
		}
		if len(s.Signature) != ed25519.SignatureSize {
			return errors.Wrapf(ErrSignatureFailure, "signature by %s has length %d", s.Signer, len(s.Signature))
		}
		if !ed25519.Verify(ed25519.PublicKey(s.Signer[:]), msg, s.Signature) {
			return errors.Wrapf(ErrSignatureFailure, "bad signature by %s", s.Signer)
		}
		signed[s.Signer] = true
	}
	for _, key := range tx.RequiredSigners() {
		if !signed[key] {
			return errors.Wrapf(ErrSignatureFailure, "missing signature by %s", key)
		}
	}
	return nil
}

// GenerateKey creates a fresh ed25519 keypair and returns its address.
func GenerateKey() (Pubkey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Pubkey{}, nil, errors.Wrap(err, "generate key")
	}
	var key Pubkey
	copy(key[:], pub)
	return key, priv, nil
}

// KeyFromSeed derives a keypair from a 32-byte seed.
func KeyFromSeed(seed []byte) (Pubkey, ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return Pubkey{}, nil, errors.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var key Pubkey
	copy(key[:], priv.Public().(ed25519.PublicKey))
	return key, priv, nil
}
