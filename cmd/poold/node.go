// node.go - Wires the ledger, pool program, indexer and root feed together
package main

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"shieldedpool/internal/feed"
	"shieldedpool/internal/indexer"
	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
	"shieldedpool/internal/program"
	"shieldedpool/internal/runtime"
	"shieldedpool/internal/transactions/deposit"
	"shieldedpool/internal/transactions/initialize"
)

// Node owns every long-lived component of the daemon.
type Node struct {
	cfg     *Config
	log     *Logger
	store   *runtime.Store
	bank    *runtime.Bank
	program *program.Processor
	acc     *merkle.Accumulator
	index   *indexer.Indexer
	hub     *feed.Hub
	health  *HealthChecker

	// submitMu keeps index and feed updates in ledger order.
	submitMu sync.Mutex
}

// PoolInfo summarizes the pool for clients.
type PoolInfo struct {
	ProgramID    runtime.Pubkey `json:"program_id"`
	State        runtime.Pubkey `json:"state"`
	Vault        runtime.Pubkey `json:"vault"`
	Hasher       string         `json:"hasher"`
	Initialized  bool           `json:"initialized"`
	Depth        int            `json:"depth"`
	HistorySize  int            `json:"history_size"`
	LeafCount    uint64         `json:"leaf_count"`
	VaultBalance uint64         `json:"vault_balance"`
	CurrentRoot  merkle.Hash    `json:"current_root"`
	Roots        []merkle.Hash  `json:"roots"`
}

// NewNode opens storage and builds the program for cfg.
func NewNode(cfg *Config, log *Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	hasher, err := merkle.NewHasher(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	proc, err := program.New(runtime.PubkeyFromSeed(cfg.ProgramSeed), hasher)
	if err != nil {
		return nil, err
	}

	store, err := runtime.OpenStore(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	bank := runtime.NewBank(store, log.Logger)
	if err := bank.Register(proc.ID(), proc); err != nil {
		store.Close()
		return nil, err
	}

	// An initialized pool fixes the depth regardless of config.
	depth := cfg.Depth
	if st, err := proc.LoadState(bank); err == nil {
		if st.Depth() != cfg.Depth {
			log.Warn().Int("config", cfg.Depth).Int("ledger", st.Depth()).Msg("configured depth differs from initialized pool")
		}
		depth = st.Depth()
	}
	acc, err := merkle.NewAccumulator(hasher, depth)
	if err != nil {
		store.Close()
		return nil, err
	}
	index, err := indexer.Open(cfg.IndexPath(), acc)
	if err != nil {
		store.Close()
		return nil, err
	}

	n := &Node{
		cfg:     cfg,
		log:     log,
		store:   store,
		bank:    bank,
		program: proc,
		acc:     acc,
		index:   index,
		health:  NewHealthChecker(Version),
	}
	n.hub = feed.NewHub(proc.ID().String(), log.Logger, n.hello)

	n.health.RegisterComponent("ledger", func() error {
		_, err := bank.Account(proc.ID())
		return err
	})
	n.health.RegisterComponent("indexer", n.checkIndex)
	n.health.RegisterComponent("feed", func() error {
		feedSubscribers.Set(float64(n.hub.Subscribers()))
		return nil
	})
	return n, nil
}

// Run drives the feed hub until ctx is done.
func (n *Node) Run(ctx context.Context) {
	n.hub.Run(ctx)
}

// Close releases storage and stops the feed.
func (n *Node) Close() error {
	n.hub.Close()
	err := n.index.Close()
	if serr := n.store.Close(); err == nil {
		err = serr
	}
	return err
}

// Initialize creates the pool paid for by payer using the configured shape.
func (n *Node) Initialize(payer *Wallet) (*initialize.Result, error) {
	ix := n.program.InitializeInstruction(payer.Pubkey, uint8(n.acc.Depth()), uint16(n.cfg.HistorySize))
	tx := runtime.NewTransaction(uint64(time.Now().UnixNano()), ix)
	tx.Sign(payer.Key)
	res, err := n.Submit(tx)
	if err != nil {
		return nil, err
	}
	for _, ev := range res.Events {
		if r, ok := ev.(*initialize.Result); ok {
			return r, nil
		}
	}
	return nil, errors.New("initialize produced no result")
}

// Deposit signs and submits a deposit by payer.
func (n *Node) Deposit(payer *Wallet, amount uint64, commitment merkle.Hash) (*deposit.Receipt, error) {
	ix := n.program.DepositInstruction(payer.Pubkey, amount, commitment)
	tx := runtime.NewTransaction(uint64(time.Now().UnixNano()), ix)
	tx.Sign(payer.Key)
	res, err := n.Submit(tx)
	if err != nil {
		return nil, err
	}
	for _, ev := range res.Events {
		if r, ok := ev.(*deposit.Receipt); ok {
			return r, nil
		}
	}
	return nil, errors.New("deposit produced no receipt")
}

// Submit executes tx and fans its events out to the indexer, feed, metrics and
// audit log.
func (n *Node) Submit(tx *runtime.Transaction) (*runtime.Result, error) {
	n.submitMu.Lock()
	defer n.submitMu.Unlock()

	start := time.Now()
	err := n.checkShape(tx)
	var res *runtime.Result
	if err == nil {
		res, err = n.bank.Process(tx)
	}
	recordTransaction(start, err)
	if err != nil {
		n.log.Debug().Err(err).Msg("transaction rejected")
		return nil, err
	}

	for _, ev := range res.Events {
		switch e := ev.(type) {
		case *deposit.Receipt:
			n.onDeposit(e)
		case *initialize.Result:
			n.log.Audit("pool_initialized", map[string]any{
				"state": e.State.String(),
				"depth": e.Depth,
			})
		}
	}
	return res, nil
}

// checkShape refuses initialize instructions for a tree the indexer was not
// opened for. The indexer cannot follow a pool of another depth.
func (n *Node) checkShape(tx *runtime.Transaction) error {
	for _, ix := range tx.Instructions {
		if ix.ProgramID != n.program.ID() || len(ix.Data) == 0 || ix.Data[0] != program.TagInitialize {
			continue
		}
		req, err := initialize.Decode(ix.Data[1:])
		if err != nil {
			// Left for the program to reject.
			continue
		}
		if int(req.Depth) != n.acc.Depth() || int(req.HistorySize) != n.cfg.HistorySize {
			return errors.Wrapf(runtime.ErrInvalidArgument,
				"node serves depth %d history %d, initialize asks for depth %d history %d",
				n.acc.Depth(), n.cfg.HistorySize, req.Depth, req.HistorySize)
		}
	}
	return nil
}

func (n *Node) onDeposit(r *deposit.Receipt) {
	recordDeposit(r.Amount, r.LeafCount)
	if err := n.index.Record(r); err != nil {
		n.log.Error().Err(err).Uint64("leaf_index", r.LeafIndex).Msg("indexing deposit")
	}
	update := feed.RootUpdate{
		Root:       r.Root,
		LeafIndex:  r.LeafIndex,
		LeafCount:  r.LeafCount,
		Commitment: r.Commitment,
	}
	if err := n.hub.Publish(feed.TypeRoot, update); err != nil {
		n.log.Warn().Err(err).Msg("publishing root")
	}
	n.log.Audit("deposit", map[string]any{
		"amount":     r.Amount,
		"leaf_index": r.LeafIndex,
		"root":       r.Root.String(),
	})
}

// Airdrop funds key when the faucet is enabled.
func (n *Node) Airdrop(key runtime.Pubkey, lamports uint64) error {
	if !n.cfg.EnableFaucet {
		return errors.New("faucet disabled")
	}
	n.log.Audit("airdrop", map[string]any{"to": key.String(), "lamports": lamports})
	return n.bank.Airdrop(key, lamports)
}

// Balance returns the committed lamports of key.
func (n *Node) Balance(key runtime.Pubkey) (uint64, error) {
	acct, err := n.bank.Account(key)
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// State loads the committed Pool State.
func (n *Node) State() (*pool.State, error) {
	return n.program.LoadState(n.bank)
}

// Info reports the pool head.
func (n *Node) Info() (*PoolInfo, error) {
	addrs := n.program.Addresses()
	info := &PoolInfo{
		ProgramID: n.program.ID(),
		State:     addrs.State,
		Vault:     addrs.Vault,
		Hasher:    n.program.Hasher().Name(),
	}
	vault, err := n.Balance(addrs.Vault)
	if err != nil {
		return nil, err
	}
	info.VaultBalance = vault

	st, err := n.State()
	if errors.Is(err, runtime.ErrUninitializedAccount) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	acc, err := n.program.Accumulator(st)
	if err != nil {
		return nil, err
	}
	info.Initialized = true
	info.Depth = st.Depth()
	info.HistorySize = st.History.Capacity()
	info.LeafCount = st.Tree.LeafCount
	info.CurrentRoot = st.CurrentRoot(acc)
	info.Roots = st.History.Recent()
	return info, nil
}

// KnownRoot reports whether root is in the pool's root history.
func (n *Node) KnownRoot(root merkle.Hash) (bool, error) {
	st, err := n.State()
	if errors.Is(err, runtime.ErrUninitializedAccount) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.KnownRoot(root), nil
}

// Path returns the Merkle path of a deposited commitment.
func (n *Node) Path(index uint64) (leaf merkle.Hash, siblings []merkle.Hash, root merkle.Hash, err error) {
	return n.index.Path(index)
}

// Replay verifies that the commitment index reproduces the ledger's pool state.
func (n *Node) Replay() error {
	st, err := n.State()
	if err != nil {
		return err
	}
	return n.index.Verify(st)
}

func (n *Node) checkIndex() error {
	err := n.Replay()
	if errors.Is(err, runtime.ErrUninitializedAccount) {
		return &DegradedError{Reason: "pool not initialized"}
	}
	if errors.Is(err, indexer.ErrRootMismatch) {
		return &DegradedError{Reason: err.Error()}
	}
	return err
}

func (n *Node) hello() (*feed.Message, error) {
	info, err := n.Info()
	if err != nil {
		return nil, err
	}
	return feed.NewMessage(feed.TypeHello, n.program.ID().String(), feed.Hello{
		Root:      info.CurrentRoot,
		LeafCount: info.LeafCount,
	})
}
