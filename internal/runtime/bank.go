// bank.go - Transaction executor with all-or-nothing commit.

package runtime

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Result is what a committed transaction hands back.
type Result struct {
	ID     []byte
	Events []any
}

// Bank executes transactions against a Store. Execution is serialized.
type Bank struct {
	mu       sync.Mutex
	store    *Store
	programs map[Pubkey]Program
	log      zerolog.Logger
}

// NewBank returns a bank over store.
func NewBank(store *Store, log zerolog.Logger) *Bank {
	return &Bank{
		store:    store,
		programs: make(map[Pubkey]Program),
		log:      log.With().Str("component", "bank").Logger(),
	}
}

// Register installs a program at id and marks the account executable.
func (b *Bank) Register(id Pubkey, p Program) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == SystemProgramID {
		return errors.New("cannot register over the system program")
	}
	b.programs[id] = p
	acct, _, err := b.store.Get(id)
	if err != nil {
		return err
	}
	if acct.Executable {
		return nil
	}
	acct.Executable = true
	acct.Owner = SystemProgramID
	return b.store.ApplyBatch(map[Pubkey]*Account{id: acct}, nil)
}

// Account returns the committed state of key.
func (b *Bank) Account(key Pubkey) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, _, err := b.store.Get(key)
	return acct, err
}

// Airdrop credits lamports out of thin air. Test and devnet use only.
func (b *Bank) Airdrop(key Pubkey, lamports uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, _, err := b.store.Get(key)
	if err != nil {
		return err
	}
	if acct.Lamports+lamports < acct.Lamports {
		return ErrArithmeticOverflow
	}
	acct.Lamports += lamports
	return b.store.ApplyBatch(map[Pubkey]*Account{key: acct}, nil)
}

// Process verifies and executes tx. Either every instruction succeeds and all
// touched accounts are written in one batch, or nothing is written.
func (b *Bank) Process(tx *Transaction) (*Result, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := tx.ID()
	done, err := b.store.Processed(id)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, ErrAlreadyProcessed
	}

	working := make(map[Pubkey]*Account)
	original := make(map[Pubkey]*Account)
	for _, ix := range tx.Instructions {
		for _, m := range append([]AccountMeta{{Pubkey: ix.ProgramID}}, ix.Accounts...) {
			if _, ok := working[m.Pubkey]; ok {
				continue
			}
			acct, _, err := b.store.Get(m.Pubkey)
			if err != nil {
				return nil, err
			}
			original[m.Pubkey] = acct
			working[m.Pubkey] = acct.Clone()
		}
	}

	var events []any
	for i, ix := range tx.Instructions {
		evs, err := b.execute(ix, working)
		if err != nil {
			b.log.Debug().Err(err).Int("instruction", i).Str("program", ix.ProgramID.String()).Msg("transaction rejected")
			return nil, err
		}
		events = append(events, evs...)
	}

	changed := make(map[Pubkey]*Account)
	for key, acct := range working {
		if !acct.Equal(original[key]) {
			changed[key] = acct
		}
	}
	if err := b.store.ApplyBatch(changed, id); err != nil {
		return nil, err
	}
	b.log.Debug().Int("accounts", len(changed)).Msg("transaction committed")
	return &Result{ID: id, Events: events}, nil
}

func (b *Bank) execute(ix Instruction, working map[Pubkey]*Account) ([]any, error) {
	program, ok := b.programs[ix.ProgramID]
	if !ok {
		return nil, ErrUnknownProgram
	}

	infos := make([]*AccountInfo, len(ix.Accounts))
	writable := make(map[Pubkey]bool)
	for i, m := range ix.Accounts {
		infos[i] = &AccountInfo{
			Key:        m.Pubkey,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
			Account:    working[m.Pubkey],
		}
		if m.IsWritable {
			writable[m.Pubkey] = true
		}
	}

	before := make(map[Pubkey]*Account)
	var sumBefore uint64
	for _, m := range ix.Accounts {
		if _, ok := before[m.Pubkey]; ok {
			continue
		}
		before[m.Pubkey] = working[m.Pubkey].Clone()
		sumBefore += working[m.Pubkey].Lamports
	}

	ctx := NewContext(ix.ProgramID, b.log.With().Str("program", ix.ProgramID.String()).Logger())
	if err := program.Process(ctx, infos, ix.Data); err != nil {
		return nil, err
	}

	var sumAfter uint64
	for key, prev := range before {
		cur := working[key]
		sumAfter += cur.Lamports
		if writable[key] {
			continue
		}
		if cur.Lamports != prev.Lamports || cur.Owner != prev.Owner || !bytes.Equal(cur.Data, prev.Data) {
			return nil, ErrReadonlyAccountChanged
		}
	}
	if sumAfter != sumBefore {
		return nil, ErrUnbalancedInstruction
	}
	return ctx.Events(), nil
}
