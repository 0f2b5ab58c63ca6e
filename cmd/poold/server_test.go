package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/feed"
	"shieldedpool/internal/merkle"
	"shieldedpool/internal/runtime"
	"shieldedpool/internal/transactions/deposit"
)

type testDaemon struct {
	node  *Node
	srv   *httptest.Server
	payer *Wallet
	nonce uint64
}

func newTestDaemon(t *testing.T, limiter *ClientRateLimiter) *testDaemon {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.EnableFaucet = true
	cfg.Depth = 4
	cfg.HistorySize = 3

	n, err := NewNode(cfg, NopLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	if limiter == nil {
		limiter = NewClientRateLimiter(1000, 1000, time.Second)
	}
	srv := httptest.NewServer(n.Handler(limiter))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		n.Close()
	})

	payer, err := NewWallet()
	require.NoError(t, err)
	return &testDaemon{node: n, srv: srv, payer: payer}
}

func (d *testDaemon) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, d.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (d *testDaemon) depositTx(amount uint64, commitment merkle.Hash) *runtime.Transaction {
	d.nonce++
	tx := runtime.NewTransaction(d.nonce, d.node.program.DepositInstruction(d.payer.Pubkey, amount, commitment))
	tx.Sign(d.payer.Key)
	return tx
}

func (d *testDaemon) setup(t *testing.T) {
	t.Helper()
	code, _ := d.do(t, http.MethodPost, "/v1/airdrop", airdropRequest{Pubkey: d.payer.Pubkey, Lamports: 10_000})
	require.Equal(t, http.StatusOK, code)
	_, err := d.node.Initialize(d.payer)
	require.NoError(t, err)
}

func TestSubmitDepositOverHTTP(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	commitment := merkle.Hash{0xaa, 0x01}
	code, body := d.do(t, http.MethodPost, "/v1/transactions", d.depositTx(1000, commitment))
	require.Equal(t, http.StatusOK, code, string(body))

	var resp struct {
		ID     string            `json:"id"`
		Events []deposit.Receipt `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "0x"))
	require.Len(t, resp.Events, 1)
	rcpt := resp.Events[0]
	assert.Equal(t, uint64(0), rcpt.LeafIndex)
	assert.Equal(t, uint64(1), rcpt.LeafCount)
	assert.Equal(t, commitment, rcpt.Commitment)

	code, body = d.do(t, http.MethodGet, "/v1/pool", nil)
	require.Equal(t, http.StatusOK, code)
	var info PoolInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.True(t, info.Initialized)
	assert.Equal(t, 4, info.Depth)
	assert.Equal(t, uint64(1), info.LeafCount)
	assert.Equal(t, uint64(1000), info.VaultBalance)
	assert.Equal(t, rcpt.Root, info.CurrentRoot)
	assert.Equal(t, []merkle.Hash{rcpt.Root}, info.Roots)

	code, body = d.do(t, http.MethodGet, "/v1/roots/"+rcpt.Root.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"known":true}`, string(body))

	code, body = d.do(t, http.MethodGet, "/v1/roots/"+merkle.Hash{0x42}.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"known":false}`, string(body))

	code, body = d.do(t, http.MethodGet, "/v1/accounts/"+d.payer.Pubkey.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"lamports":9000}`, string(body))
}

func TestPathMatchesLedgerRoot(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	var last deposit.Receipt
	for i := byte(1); i <= 3; i++ {
		rcpt, err := d.node.Deposit(d.payer, 100, merkle.Hash{i})
		require.NoError(t, err)
		last = *rcpt
	}

	code, body := d.do(t, http.MethodGet, "/v1/paths/1", nil)
	require.Equal(t, http.StatusOK, code)
	var path pathResponse
	require.NoError(t, json.Unmarshal(body, &path))
	assert.Equal(t, merkle.Hash{2}, path.Leaf)
	assert.Equal(t, last.Root, path.Root)
	assert.True(t, d.node.acc.VerifyPath(path.Leaf, path.Index, path.Siblings, path.Root))

	known, err := d.node.KnownRoot(path.Root)
	require.NoError(t, err)
	assert.True(t, known)
	require.NoError(t, d.node.Replay())

	code, _ = d.do(t, http.MethodGet, "/v1/paths/3", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = d.do(t, http.MethodGet, "/v1/paths/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRejectedTransactionReportsProgramError(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	code, body := d.do(t, http.MethodPost, "/v1/transactions", d.depositTx(0, merkle.Hash{1}))
	require.Equal(t, http.StatusBadRequest, code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, runtime.ErrInvalidInstructionData.Code, errResp.Code)

	code, body = d.do(t, http.MethodPost, "/v1/transactions", d.depositTx(1_000_000, merkle.Hash{1}))
	require.Equal(t, http.StatusBadRequest, code)
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, runtime.ErrInsufficientFunds.Code, errResp.Code)

	// Nothing was committed.
	info, err := d.node.Info()
	require.NoError(t, err)
	assert.Zero(t, info.LeafCount)
	assert.Zero(t, info.VaultBalance)

	code, _ = d.do(t, http.MethodPost, "/v1/transactions", "not a transaction")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReplayedTransactionRejected(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	tx := d.depositTx(10, merkle.Hash{9})
	code, _ := d.do(t, http.MethodPost, "/v1/transactions", tx)
	require.Equal(t, http.StatusOK, code)

	code, body := d.do(t, http.MethodPost, "/v1/transactions", tx)
	require.Equal(t, http.StatusBadRequest, code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, runtime.ErrAlreadyProcessed.Code, errResp.Code)
}

func TestResignedDepositNotReplayed(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	tx := d.depositTx(10, merkle.Hash{9})
	code, _ := d.do(t, http.MethodPost, "/v1/transactions", tx)
	require.Equal(t, http.StatusOK, code)

	other, err := NewWallet()
	require.NoError(t, err)
	forged := runtime.NewTransaction(tx.Nonce, tx.Instructions...)
	forged.Sign(other.Key)
	forged.Signatures = append(forged.Signatures, tx.Signatures...)

	code, body := d.do(t, http.MethodPost, "/v1/transactions", forged)
	require.Equal(t, http.StatusBadRequest, code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, runtime.ErrSignatureFailure.Code, errResp.Code)

	info, err := d.node.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.LeafCount)
	assert.Equal(t, uint64(10), info.VaultBalance)
}

func TestInitializeMustMatchNodeShape(t *testing.T) {
	d := newTestDaemon(t, nil)

	for _, shape := range []struct {
		depth   uint8
		history uint16
	}{{8, 3}, {4, 30}} {
		d.nonce++
		tx := runtime.NewTransaction(d.nonce, d.node.program.InitializeInstruction(d.payer.Pubkey, shape.depth, shape.history))
		tx.Sign(d.payer.Key)

		code, body := d.do(t, http.MethodPost, "/v1/transactions", tx)
		require.Equal(t, http.StatusBadRequest, code)
		var errResp errorResponse
		require.NoError(t, json.Unmarshal(body, &errResp))
		assert.Equal(t, runtime.ErrInvalidArgument.Code, errResp.Code)
	}

	info, err := d.node.Info()
	require.NoError(t, err)
	assert.False(t, info.Initialized)

	d.setup(t)
	rcpt, err := d.node.Deposit(d.payer, 10, merkle.Hash{5})
	require.NoError(t, err)

	leaf, siblings, root, err := d.node.Path(0)
	require.NoError(t, err)
	assert.Equal(t, merkle.Hash{5}, leaf)
	assert.Equal(t, rcpt.Root, root)
	assert.Len(t, siblings, 4)
	require.NoError(t, d.node.Replay())
}

func TestFeedStreamsRoots(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.setup(t)

	url := "ws" + strings.TrimPrefix(d.srv.URL, "http") + "/v1/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() *feed.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg feed.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return &msg
	}

	hello := read()
	assert.Equal(t, feed.TypeHello, hello.Type)
	require.Eventually(t, func() bool { return d.node.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	rcpt, err := d.node.Deposit(d.payer, 50, merkle.Hash{7})
	require.NoError(t, err)

	msg := read()
	require.Equal(t, feed.TypeRoot, msg.Type)
	var update feed.RootUpdate
	require.NoError(t, msg.Decode(&update))
	assert.Equal(t, rcpt.Root, update.Root)
	assert.Equal(t, uint64(1), update.LeafCount)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	d := newTestDaemon(t, nil)

	// Uninitialized pool degrades the indexer but the daemon still serves.
	code, body := d.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	var health SystemHealth
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, Degraded, health.OverallStatus)

	d.setup(t)
	_, err := d.node.Deposit(d.payer, 1, merkle.Hash{3})
	require.NoError(t, err)

	code, body = d.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, Healthy, health.OverallStatus)

	code, body = d.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "shieldedpool_deposits_total")
	assert.Contains(t, string(body), "shieldedpool_leaf_count")
}

func TestAirdropRateLimitedAndGated(t *testing.T) {
	d := newTestDaemon(t, NewClientRateLimiter(1, 1, time.Hour))

	req := airdropRequest{Pubkey: d.payer.Pubkey, Lamports: 5}
	code, _ := d.do(t, http.MethodPost, "/v1/airdrop", req)
	assert.Equal(t, http.StatusOK, code)
	code, _ = d.do(t, http.MethodPost, "/v1/airdrop", req)
	assert.Equal(t, http.StatusTooManyRequests, code)

	d.node.cfg.EnableFaucet = false
	assert.Error(t, d.node.Airdrop(d.payer.Pubkey, 5))
}
