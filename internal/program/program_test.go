package program

import (
	"testing"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/runtime"
	"shieldedpool/internal/transactions/deposit"
	"shieldedpool/internal/transactions/initialize"
)

type env struct {
	bank  *runtime.Bank
	proc  *Processor
	payer runtime.Pubkey
	key   ed25519.PrivateKey
	nonce uint64
}

func newEnv(t *testing.T, depth uint8, history uint16, lamports uint64) *env {
	t.Helper()
	store, err := runtime.OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hasher, err := merkle.NewHasher(merkle.HasherKeccak256)
	require.NoError(t, err)
	proc, err := New(pool.DefaultProgramID, hasher)
	require.NoError(t, err)

	bank := runtime.NewBank(store, zerolog.Nop())
	require.NoError(t, bank.Register(proc.ID(), proc))

	payer, key, err := runtime.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, bank.Airdrop(payer, lamports))

	e := &env{bank: bank, proc: proc, payer: payer, key: key}
	_, err = e.send(proc.InitializeInstruction(payer, depth, history))
	require.NoError(t, err)
	return e
}

func (e *env) send(ixs ...runtime.Instruction) (*runtime.Result, error) {
	e.nonce++
	tx := runtime.NewTransaction(e.nonce, ixs...)
	tx.Sign(e.key)
	return e.bank.Process(tx)
}

func (e *env) balance(t *testing.T, key runtime.Pubkey) uint64 {
	t.Helper()
	acct, err := e.bank.Account(key)
	require.NoError(t, err)
	return acct.Lamports
}

func TestInitializeEvent(t *testing.T) {
	store, err := runtime.OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	hasher, err := merkle.NewHasher(merkle.HasherBlake3)
	require.NoError(t, err)
	proc, err := New(runtime.PubkeyFromSeed("event-test"), hasher)
	require.NoError(t, err)
	bank := runtime.NewBank(store, zerolog.Nop())
	require.NoError(t, bank.Register(proc.ID(), proc))

	payer, key, err := runtime.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, bank.Airdrop(payer, 1))

	tx := runtime.NewTransaction(1, proc.InitializeInstruction(payer, 10, 5))
	tx.Sign(key)
	res, err := bank.Process(tx)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev, ok := res.Events[0].(*initialize.Result)
	require.True(t, ok)
	assert.Equal(t, proc.Addresses().State, ev.State)
	assert.Equal(t, 10, ev.Depth)
}

func TestDepositThroughBank(t *testing.T) {
	e := newEnv(t, pool.DefaultDepth, pool.DefaultHistorySize, 5_000_000)
	commitment := merkle.Hash{0x11}

	res, err := e.send(e.proc.DepositInstruction(e.payer, 1_000_000, commitment))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	rcpt := res.Events[0].(*deposit.Receipt)

	assert.Equal(t, uint64(4_000_000), e.balance(t, e.payer))
	assert.Equal(t, uint64(1_000_000), e.balance(t, e.proc.Addresses().Vault))

	st, err := e.proc.LoadState(e.bank)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Tree.LeafCount)
	assert.True(t, st.KnownRoot(rcpt.Root))
}

func TestRejectedDepositLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t, 2, 4, 100)
	for i := byte(1); i <= 3; i++ {
		_, err := e.send(e.proc.DepositInstruction(e.payer, 10, merkle.Hash{i}))
		require.NoError(t, err)
	}
	vault := e.proc.Addresses().Vault
	before, err := e.proc.LoadState(e.bank)
	require.NoError(t, err)

	_, err = e.send(e.proc.DepositInstruction(e.payer, 10, merkle.Hash{4}))
	require.ErrorIs(t, err, pool.ErrTreeFull)

	_, err = e.send(e.proc.DepositInstruction(e.payer, 1_000, merkle.Hash{5}))
	require.ErrorIs(t, err, pool.ErrTreeFull)

	after, err := e.proc.LoadState(e.bank)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(30), e.balance(t, vault))
	assert.Equal(t, uint64(70), e.balance(t, e.payer))
}

func TestInsufficientFundsPropagated(t *testing.T) {
	e := newEnv(t, 8, 4, 50)
	_, err := e.send(e.proc.DepositInstruction(e.payer, 51, merkle.Hash{1}))
	require.ErrorIs(t, err, runtime.ErrInsufficientFunds)

	st, err := e.proc.LoadState(e.bank)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.Tree.LeafCount)
	assert.Equal(t, uint64(50), e.balance(t, e.payer))
}

func TestMultiInstructionAtomicity(t *testing.T) {
	e := newEnv(t, 8, 4, 50)
	_, err := e.send(
		e.proc.DepositInstruction(e.payer, 10, merkle.Hash{1}),
		e.proc.DepositInstruction(e.payer, 0, merkle.Hash{2}),
	)
	require.ErrorIs(t, err, runtime.ErrInvalidInstructionData)

	st, err := e.proc.LoadState(e.bank)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.Tree.LeafCount)
	assert.Equal(t, uint64(0), e.balance(t, e.proc.Addresses().Vault))

	res, err := e.send(
		e.proc.DepositInstruction(e.payer, 10, merkle.Hash{1}),
		e.proc.DepositInstruction(e.payer, 20, merkle.Hash{2}),
	)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, uint64(1), res.Events[1].(*deposit.Receipt).LeafIndex)
	assert.Equal(t, uint64(30), e.balance(t, e.proc.Addresses().Vault))
}

func TestDepositBeforeInitialize(t *testing.T) {
	store, err := runtime.OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	hasher, err := merkle.NewHasher("")
	require.NoError(t, err)
	proc, err := New(pool.DefaultProgramID, hasher)
	require.NoError(t, err)
	bank := runtime.NewBank(store, zerolog.Nop())
	require.NoError(t, bank.Register(proc.ID(), proc))

	payer, key, err := runtime.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, bank.Airdrop(payer, 100))

	tx := runtime.NewTransaction(1, proc.DepositInstruction(payer, 10, merkle.Hash{1}))
	tx.Sign(key)
	_, err = bank.Process(tx)
	// Vault and state do not exist yet, so neither is program-owned.
	assert.ErrorIs(t, err, runtime.ErrInvalidAccountOwner)
}

func TestUnknownTag(t *testing.T) {
	e := newEnv(t, 8, 4, 50)
	ix := e.proc.DepositInstruction(e.payer, 10, merkle.Hash{1})
	ix.Data[0] = 7
	_, err := e.send(ix)
	assert.ErrorIs(t, err, runtime.ErrInvalidInstructionData)

	ix.Data = nil
	_, err = e.send(ix)
	assert.ErrorIs(t, err, runtime.ErrInvalidInstructionData)
}
