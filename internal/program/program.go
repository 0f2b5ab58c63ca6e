// program.go - Instruction dispatch for the shielded pool program.

package program

import (
	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/runtime"
	"shieldedpool/internal/transactions/deposit"
	"shieldedpool/internal/transactions/initialize"
)

// Instruction tags, the first byte of instruction data.
const (
	TagInitialize byte = 0
	TagDeposit    byte = 1
)

// Processor routes instructions to their handlers and emits their results as
// transaction events.
type Processor struct {
	id         runtime.Pubkey
	hasher     merkle.Hasher
	addrs      pool.Addresses
	deposit    *deposit.Handler
	initialize *initialize.Handler
}

// New builds the pool program deployed at id, hashing with hasher.
func New(id runtime.Pubkey, hasher merkle.Hasher) (*Processor, error) {
	addrs, err := pool.DeriveAddresses(id)
	if err != nil {
		return nil, err
	}
	dep, err := deposit.NewHandler(id, hasher)
	if err != nil {
		return nil, err
	}
	ini, err := initialize.NewHandler(id, hasher)
	if err != nil {
		return nil, err
	}
	return &Processor{id: id, hasher: hasher, addrs: addrs, deposit: dep, initialize: ini}, nil
}

// ID is the program address.
func (p *Processor) ID() runtime.Pubkey { return p.id }

// Hasher is the accumulator hash of this deployment.
func (p *Processor) Hasher() merkle.Hasher { return p.hasher }

// Addresses returns the derived pool state and vault addresses.
func (p *Processor) Addresses() pool.Addresses { return p.addrs }

// Process implements runtime.Program.
func (p *Processor) Process(ctx *runtime.Context, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return runtime.ErrInvalidInstructionData
	}
	switch data[0] {
	case TagInitialize:
		res, err := p.initialize.Process(ctx, accounts, data[1:])
		if err != nil {
			return err
		}
		ctx.Emit(res)
	case TagDeposit:
		rcpt, err := p.deposit.Process(ctx, accounts, data[1:])
		if err != nil {
			return err
		}
		ctx.Emit(rcpt)
	default:
		return runtime.ErrInvalidInstructionData
	}
	return nil
}

// InitializeInstruction builds an initialize instruction paid for by payer.
func (p *Processor) InitializeInstruction(payer runtime.Pubkey, depth uint8, historySize uint16) runtime.Instruction {
	payload := initialize.Instruction{Depth: depth, HistorySize: historySize}.Encode()
	return runtime.Instruction{
		ProgramID: p.id,
		Accounts:  p.initialize.Accounts(payer),
		Data:      append([]byte{TagInitialize}, payload...),
	}
}

// DepositInstruction builds a deposit of amount by payer for commitment.
func (p *Processor) DepositInstruction(payer runtime.Pubkey, amount uint64, commitment merkle.Hash) runtime.Instruction {
	payload := deposit.Instruction{Amount: amount, Commitment: commitment}.Encode()
	return runtime.Instruction{
		ProgramID: p.id,
		Accounts:  p.deposit.Accounts(payer),
		Data:      append([]byte{TagDeposit}, payload...),
	}
}

// LoadState reads the committed Pool State through bank.
func (p *Processor) LoadState(bank *runtime.Bank) (*pool.State, error) {
	acct, err := bank.Account(p.addrs.State)
	if err != nil {
		return nil, err
	}
	if !acct.IsEmpty() && acct.Owner != p.id {
		return nil, runtime.ErrInvalidAccountOwner
	}
	return pool.Load(acct.Data)
}

// Accumulator returns an accumulator matching st and this program's hasher.
func (p *Processor) Accumulator(st *pool.State) (*merkle.Accumulator, error) {
	return merkle.NewAccumulator(p.hasher, st.Depth())
}
