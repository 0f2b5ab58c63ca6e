// deposit.go - Deposit handler: move funds into the vault and append the
// commitment to the pool accumulator.

package deposit

import (
	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/runtime"

	"github.com/pkg/errors"
)

// Account positions.
const (
	AccountPayer = iota
	AccountPoolState
	AccountVault
	AccountSystem
	numAccounts
)

// Receipt describes an accepted deposit.
type Receipt struct {
	Amount     uint64      `json:"amount"`
	Commitment merkle.Hash `json:"commitment"`
	LeafIndex  uint64      `json:"leaf_index"`
	LeafCount  uint64      `json:"leaf_count"`
	Root       merkle.Hash `json:"root"`
}

// Handler processes deposits for one program id.
type Handler struct {
	programID runtime.Pubkey
	addrs     pool.Addresses
	hasher    merkle.Hasher
}

// NewHandler derives the pool addresses of programID once.
func NewHandler(programID runtime.Pubkey, hasher merkle.Hasher) (*Handler, error) {
	if hasher == nil {
		return nil, errors.New("deposit: nil hasher")
	}
	addrs, err := pool.DeriveAddresses(programID)
	if err != nil {
		return nil, err
	}
	return &Handler{programID: programID, addrs: addrs, hasher: hasher}, nil
}

// Accounts builds the account list of a deposit by payer.
func (h *Handler) Accounts(payer runtime.Pubkey) []runtime.AccountMeta {
	return []runtime.AccountMeta{
		runtime.Signer(payer),
		runtime.Writable(h.addrs.State),
		runtime.Writable(h.addrs.Vault),
		runtime.Readonly(runtime.SystemProgramID),
	}
}

// Process validates and applies a deposit. On error no account has been
// modified.
func (h *Handler) Process(ctx *runtime.Context, accounts []*runtime.AccountInfo, data []byte) (*Receipt, error) {
	// Step 1: Structural and authority checks
	if len(accounts) != numAccounts {
		return nil, runtime.ErrNotEnoughAccountKeys
	}
	payer := accounts[AccountPayer]
	stateAcct := accounts[AccountPoolState]
	vault := accounts[AccountVault]
	system := accounts[AccountSystem]

	if !payer.IsSigner {
		return nil, runtime.ErrMissingRequiredSignature
	}
	if !stateAcct.IsWritable || !vault.IsWritable {
		return nil, runtime.ErrInvalidAccountData
	}

	// Step 2: Payload
	ix, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if ix.Amount == 0 {
		ctx.Log.Debug().Msg("deposit amount must be greater than zero")
		return nil, runtime.ErrInvalidInstructionData
	}
	if !h.hasher.ValidLeaf(ix.Commitment) {
		ctx.Log.Debug().Str("commitment", ix.Commitment.String()).Msg("commitment is not a valid leaf")
		return nil, runtime.ErrInvalidInstructionData
	}

	// Step 3: Derived accounts belong to this program
	if stateAcct.Key != h.addrs.State {
		return nil, runtime.ErrInvalidAccountData
	}
	if !stateAcct.OwnedBy(h.programID) {
		return nil, runtime.ErrInvalidAccountOwner
	}
	if vault.Key != h.addrs.Vault {
		return nil, runtime.ErrInvalidAccountData
	}
	if !vault.OwnedBy(h.programID) {
		return nil, runtime.ErrInvalidAccountOwner
	}

	st, err := pool.Load(stateAcct.Data)
	if err != nil {
		return nil, err
	}

	ctx.Log.Info().Uint64("amount", ix.Amount).Msg("processing deposit")

	// Step 4: Stage the accumulator update on a copy
	staged := st.Clone()
	acc, err := merkle.NewAccumulator(h.hasher, staged.Depth())
	if err != nil {
		return nil, runtime.ErrInvalidAccountData
	}
	leafIndex := staged.Tree.LeafCount
	root, err := acc.Insert(&staged.Tree, ix.Commitment)
	if errors.Is(err, merkle.ErrTreeFull) {
		return nil, pool.ErrTreeFull
	}
	if err != nil {
		return nil, err
	}
	staged.History.Push(root)

	// Step 5: Move funds, then persist the staged state
	if err := runtime.Transfer(system, payer, vault, ix.Amount); err != nil {
		return nil, err
	}
	if err := staged.Store(stateAcct.Data); err != nil {
		return nil, err
	}

	ctx.Log.Info().
		Uint64("leaf_index", leafIndex).
		Str("root", root.String()).
		Msg("deposit successful, root updated")

	return &Receipt{
		Amount:     ix.Amount,
		Commitment: ix.Commitment,
		LeafIndex:  leafIndex,
		LeafCount:  staged.Tree.LeafCount,
		Root:       root,
	}, nil
}
