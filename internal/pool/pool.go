// pool.go - Pool program identity, seeds and derived account addresses.

package pool

import (
	"shieldedpool/internal/runtime"

	"github.com/pkg/errors"
)

// Default tree shape for newly initialized pools.
const (
	DefaultDepth       = 20
	DefaultHistorySize = 30
	MaxHistorySize     = 1024
)

// Seeds of the two program-derived accounts. Neither carries a bump in the
// account key derivation call; FindProgramAddress appends it.
var (
	StateSeed = []byte("pool_state")
	VaultSeed = []byte("vault")
)

// DefaultProgramID is the address the daemon registers the pool program at
// unless configured otherwise.
var DefaultProgramID = runtime.PubkeyFromSeed("shieldedpool/program/v1")

// ErrTreeFull is returned when the accumulator cannot take another leaf.
var ErrTreeFull = runtime.CustomError(0, "commitment tree is full")

// Addresses holds the derived singleton accounts of one program.
type Addresses struct {
	State     runtime.Pubkey
	StateBump uint8
	Vault     runtime.Pubkey
	VaultBump uint8
}

// DeriveAddresses computes the pool state and vault addresses for programID.
func DeriveAddresses(programID runtime.Pubkey) (Addresses, error) {
	var a Addresses
	var err error
	a.State, a.StateBump, err = runtime.FindProgramAddress([][]byte{StateSeed}, programID)
	if err != nil {
		return a, errors.Wrap(err, "derive pool state address")
	}
	a.Vault, a.VaultBump, err = runtime.FindProgramAddress([][]byte{VaultSeed}, programID)
	if err != nil {
		return a, errors.Wrap(err, "derive vault address")
	}
	return a, nil
}

// StateSeeds returns the signer seeds, bump included, of the state account.
func (a Addresses) StateSeeds() [][]byte { return [][]byte{StateSeed, {a.StateBump}} }

// VaultSeeds returns the signer seeds, bump included, of the vault account.
func (a Addresses) VaultSeeds() [][]byte { return [][]byte{VaultSeed, {a.VaultBump}} }
