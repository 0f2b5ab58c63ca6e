// initialize.go - Create the pool state and vault accounts of a program.

package initialize

import (
	"encoding/binary"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/runtime"

	"github.com/pkg/errors"
)

// PayloadSize: depth u8 | history capacity u16 LE.
const PayloadSize = 3

// Instruction is a decoded initialize payload.
type Instruction struct {
	Depth       uint8
	HistorySize uint16
}

// Encode returns the wire form of ix.
func (ix Instruction) Encode() []byte {
	out := make([]byte, PayloadSize)
	out[0] = ix.Depth
	binary.LittleEndian.PutUint16(out[1:], ix.HistorySize)
	return out
}

// Decode parses and bounds-checks a payload.
func Decode(data []byte) (Instruction, error) {
	if len(data) != PayloadSize {
		return Instruction{}, runtime.ErrInvalidInstructionData
	}
	ix := Instruction{Depth: data[0], HistorySize: binary.LittleEndian.Uint16(data[1:])}
	if ix.Depth < 1 || int(ix.Depth) > merkle.MaxDepth {
		return Instruction{}, runtime.ErrInvalidInstructionData
	}
	if ix.HistorySize < 1 || int(ix.HistorySize) > pool.MaxHistorySize {
		return Instruction{}, runtime.ErrInvalidInstructionData
	}
	return ix, nil
}

// Result reports the created accounts.
type Result struct {
	State       runtime.Pubkey `json:"state"`
	Vault       runtime.Pubkey `json:"vault"`
	Depth       int            `json:"depth"`
	HistorySize int            `json:"history_size"`
	EmptyRoot   merkle.Hash    `json:"empty_root"`
}

// Handler initializes the pool of one program id.
type Handler struct {
	programID runtime.Pubkey
	addrs     pool.Addresses
	hasher    merkle.Hasher
}

// NewHandler derives the pool addresses of programID once.
func NewHandler(programID runtime.Pubkey, hasher merkle.Hasher) (*Handler, error) {
	if hasher == nil {
		return nil, errors.New("initialize: nil hasher")
	}
	addrs, err := pool.DeriveAddresses(programID)
	if err != nil {
		return nil, err
	}
	return &Handler{programID: programID, addrs: addrs, hasher: hasher}, nil
}

// Accounts builds the account list of an initialize paid for by payer.
func (h *Handler) Accounts(payer runtime.Pubkey) []runtime.AccountMeta {
	return []runtime.AccountMeta{
		runtime.Signer(payer),
		runtime.Writable(h.addrs.State),
		runtime.Writable(h.addrs.Vault),
		runtime.Readonly(runtime.SystemProgramID),
	}
}

// Process creates both program-owned accounts and writes an empty,
// initialized Pool State.
// Accounts: [payer, pool_state, vault, system_program].
func (h *Handler) Process(ctx *runtime.Context, accounts []*runtime.AccountInfo, data []byte) (*Result, error) {
	if len(accounts) != 4 {
		return nil, runtime.ErrNotEnoughAccountKeys
	}
	payer, stateAcct, vault, system := accounts[0], accounts[1], accounts[2], accounts[3]

	if !payer.IsSigner {
		return nil, runtime.ErrMissingRequiredSignature
	}
	ix, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if stateAcct.Key != h.addrs.State || vault.Key != h.addrs.Vault {
		return nil, runtime.ErrInvalidAccountData
	}
	if stateAcct.OwnedBy(h.programID) {
		if _, err := pool.Load(stateAcct.Data); err == nil {
			return nil, runtime.ErrAccountAlreadyInitialized
		}
	}

	st, err := pool.New(int(ix.Depth), int(ix.HistorySize))
	if err != nil {
		return nil, err
	}
	acc, err := merkle.NewAccumulator(h.hasher, st.Depth())
	if err != nil {
		return nil, err
	}

	if err := runtime.CreateAccount(ctx, system, payer, stateAcct, 0, uint64(st.Size()), h.programID, h.addrs.StateSeeds()); err != nil {
		return nil, err
	}
	if err := runtime.CreateAccount(ctx, system, payer, vault, 0, 0, h.programID, h.addrs.VaultSeeds()); err != nil {
		return nil, err
	}
	if err := st.Store(stateAcct.Data); err != nil {
		return nil, err
	}

	ctx.Log.Info().
		Int("depth", st.Depth()).
		Int("history", st.History.Capacity()).
		Str("state", stateAcct.Key.String()).
		Msg("pool initialized")

	return &Result{
		State:       stateAcct.Key,
		Vault:       vault.Key,
		Depth:       st.Depth(),
		HistorySize: st.History.Capacity(),
		EmptyRoot:   acc.EmptyRoot(),
	}, nil
}
