// account.go - Ledger accounts and the per-instruction view handed to programs.

package runtime

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxAccountDataSize bounds the data a single account may hold.
const MaxAccountDataSize = 10 << 20

// Account is the persisted state behind an address.
type Account struct {
	Lamports   uint64
	Owner      Pubkey
	Executable bool
	Data       []byte
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// IsEmpty reports whether the account holds nothing and belongs to the system
// program, i.e. is indistinguishable from a never-created address.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == SystemProgramID && !a.Executable
}

// Equal compares every field.
func (a *Account) Equal(b *Account) bool {
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// account layout: lamports u64 | owner [32] | executable u8 | data
const accountHeaderSize = 8 + PubkeySize + 1

func (a *Account) MarshalBinary() ([]byte, error) {
	out := make([]byte, accountHeaderSize+len(a.Data))
	binary.LittleEndian.PutUint64(out[0:8], a.Lamports)
	copy(out[8:8+PubkeySize], a.Owner[:])
	if a.Executable {
		out[8+PubkeySize] = 1
	}
	copy(out[accountHeaderSize:], a.Data)
	return out, nil
}

func (a *Account) UnmarshalBinary(b []byte) error {
	if len(b) < accountHeaderSize {
		return errors.Errorf("account record too short: %d bytes", len(b))
	}
	a.Lamports = binary.LittleEndian.Uint64(b[0:8])
	copy(a.Owner[:], b[8:8+PubkeySize])
	switch b[8+PubkeySize] {
	case 0:
		a.Executable = false
	case 1:
		a.Executable = true
	default:
		return errors.Errorf("invalid executable flag %d", b[8+PubkeySize])
	}
	a.Data = append([]byte(nil), b[accountHeaderSize:]...)
	return nil
}

// AccountInfo is an account as seen by a running instruction. Infos sharing a
// key share the same *Account.
type AccountInfo struct {
	Key        Pubkey
	IsSigner   bool
	IsWritable bool
	*Account
}

// OwnedBy reports whether the account belongs to program.
func (ai *AccountInfo) OwnedBy(program Pubkey) bool {
	return ai.Owner == program
}
