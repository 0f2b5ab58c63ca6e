// server.go - HTTP API of the pool daemon
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/runtime"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Events []any  `json:"events"`
}

type pathResponse struct {
	Index    uint64        `json:"index"`
	Leaf     merkle.Hash   `json:"leaf"`
	Siblings []merkle.Hash `json:"siblings"`
	Root     merkle.Hash   `json:"root"`
}

type airdropRequest struct {
	Pubkey   runtime.Pubkey `json:"pubkey"`
	Lamports uint64         `json:"lamports"`
}

// Handler builds the HTTP routes. Mutating endpoints are rate limited per client.
func (n *Node) Handler(limiter *ClientRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/transactions", limiter.Middleware(http.HandlerFunc(n.handleSubmit)))
	mux.Handle("POST /v1/airdrop", limiter.Middleware(http.HandlerFunc(n.handleAirdrop)))
	mux.HandleFunc("GET /v1/pool", n.handlePool)
	mux.HandleFunc("GET /v1/roots/{root}", n.handleRoot)
	mux.HandleFunc("GET /v1/paths/{index}", n.handlePath)
	mux.HandleFunc("GET /v1/accounts/{pubkey}", n.handleAccount)
	mux.Handle("GET /v1/feed", n.hub)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", n.health)
	return mux
}

// Serve listens on the configured address until ctx is done.
func (n *Node) Serve(ctx context.Context) error {
	window, err := n.cfg.RateLimitWindow()
	if err != nil {
		return err
	}
	limiter := NewClientRateLimiter(n.cfg.RateLimitBurst, n.cfg.RateLimitRefill, window)
	timeout := time.Duration(n.cfg.RequestTimeoutSeconds) * time.Second

	srv := &http.Server{
		Addr:              n.cfg.ListenAddr,
		Handler:           n.Handler(limiter),
		ReadHeaderTimeout: timeout,
	}

	go n.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		n.log.Info().Str("addr", n.cfg.ListenAddr).Msg("serving pool API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (n *Node) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx runtime.Transaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction body")
		return
	}
	res, err := n.Submit(&tx)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		ID:     hexutil.Encode(res.ID),
		Events: res.Events,
	})
}

func (n *Node) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid airdrop body")
		return
	}
	if err := n.Airdrop(req.Pubkey, req.Lamports); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	balance, err := n.Balance(req.Pubkey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (n *Node) handlePool(w http.ResponseWriter, r *http.Request) {
	info, err := n.Info()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (n *Node) handleRoot(w http.ResponseWriter, r *http.Request) {
	root, err := merkle.HexToHash(r.PathValue("root"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	known, err := n.KnownRoot(root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"known": known})
}

func (n *Node) handlePath(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	leaf, siblings, root, err := n.Path(index)
	if errors.Is(err, merkle.ErrIndexOutOfRange) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{Index: index, Leaf: leaf, Siblings: siblings, Root: root})
}

func (n *Node) handleAccount(w http.ResponseWriter, r *http.Request) {
	key, err := runtime.PubkeyFromHex(r.PathValue("pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := n.Balance(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lamports": balance})
}

func writeProgramError(w http.ResponseWriter, err error) {
	var perr *runtime.ProgramError
	if errors.As(err, &perr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: perr.Name, Code: perr.Code})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
