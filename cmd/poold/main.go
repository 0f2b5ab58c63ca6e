// main.go - poold: shielded pool ledger daemon and CLI.
//
// Usage:
//
//	poold keygen --out payer.json
//	poold init --key payer.json
//	poold airdrop --key payer.json --lamports 5000000
//	poold deposit --key payer.json --amount 1000000
//	poold serve
//	poold roots
//	poold replay
//	poold note --amount 1000000
//
// Local commands open the ledger directly and cannot run while serve holds it;
// use deposit --remote against a running daemon instead.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/note"
	"shieldedpool/internal/program"
	"shieldedpool/internal/runtime"
)

// Version is stamped at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds what every subcommand shares.
type app struct {
	configPath string
	cfg        *Config
	log        *Logger
}

func (a *app) load() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	log, err := NewLogger(cfg.LogLevel, cfg.LogFile, cfg.AuditPath())
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) withNode(fn func(n *Node) error) error {
	if err := a.load(); err != nil {
		return err
	}
	defer a.log.Close()

	n, err := NewNode(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer n.Close()
	return fn(n)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "poold",
		Short:         "Shielded pool ledger daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&a.configPath, "config", "poold.json", "path to the JSON config file")

	root.AddCommand(
		newKeygenCmd(),
		newInitCmd(a),
		newAirdropCmd(a),
		newDepositCmd(a),
		newServeCmd(a),
		newRootsCmd(a),
		newReplayCmd(a),
		newNoteCmd(),
	)
	return root
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a payer keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := NewWallet()
			if err != nil {
				return err
			}
			if err := w.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\nsaved:  %s\n", w.Pubkey, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "payer.json", "key file to write")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the pool state and vault accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			payer, err := LoadWallet(keyPath)
			if err != nil {
				return err
			}
			return a.withNode(func(n *Node) error {
				res, err := n.Initialize(payer)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "payer.json", "payer key file")
	return cmd
}

func newAirdropCmd(a *app) *cobra.Command {
	var (
		keyPath  string
		to       string
		lamports uint64
	)
	cmd := &cobra.Command{
		Use:   "airdrop",
		Short: "Credit lamports to an account (faucet must be enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var key runtime.Pubkey
			if to != "" {
				k, err := runtime.PubkeyFromHex(to)
				if err != nil {
					return err
				}
				key = k
			} else {
				w, err := LoadWallet(keyPath)
				if err != nil {
					return err
				}
				key = w.Pubkey
			}
			return a.withNode(func(n *Node) error {
				if err := n.Airdrop(key, lamports); err != nil {
					return err
				}
				balance, err := n.Balance(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %d\n", key, balance)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "payer.json", "key file of the recipient")
	cmd.Flags().StringVar(&to, "to", "", "recipient pubkey (overrides --key)")
	cmd.Flags().Uint64Var(&lamports, "lamports", 1_000_000_000, "amount to credit")
	return cmd
}

func newDepositCmd(a *app) *cobra.Command {
	var (
		keyPath       string
		amount        uint64
		commitmentHex string
		remote        string
	)
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit into the pool",
		Long:  "Deposit into the pool. Without --commitment a fresh note is generated and printed; keep it to withdraw later.",
		RunE: func(cmd *cobra.Command, args []string) error {
			payer, err := LoadWallet(keyPath)
			if err != nil {
				return err
			}

			var commitment merkle.Hash
			if commitmentHex != "" {
				if commitment, err = merkle.HexToHash(commitmentHex); err != nil {
					return err
				}
			} else {
				n, err := note.New(amount)
				if err != nil {
					return err
				}
				commitment = n.Commitment()
				fmt.Fprintf(cmd.OutOrStdout(), "note: %s\n", n)
			}

			if remote != "" {
				if err := a.load(); err != nil {
					return err
				}
				defer a.log.Close()
				return depositRemote(cmd, a.cfg, remote, payer, amount, commitment)
			}
			return a.withNode(func(n *Node) error {
				rcpt, err := n.Deposit(payer, amount, commitment)
				if err != nil {
					return err
				}
				return printJSON(cmd, rcpt)
			})
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "payer.json", "payer key file")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "lamports to deposit")
	cmd.Flags().StringVar(&commitmentHex, "commitment", "", "commitment to insert (hex); generated from a new note when empty")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running poold, e.g. http://127.0.0.1:8899")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func depositRemote(cmd *cobra.Command, cfg *Config, baseURL string, payer *Wallet, amount uint64, commitment merkle.Hash) error {
	hasher, err := merkle.NewHasher(cfg.Hasher)
	if err != nil {
		return err
	}
	proc, err := program.New(runtime.PubkeyFromSeed(cfg.ProgramSeed), hasher)
	if err != nil {
		return err
	}
	tx := runtime.NewTransaction(uint64(time.Now().UnixNano()), proc.DepositInstruction(payer.Pubkey, amount, commitment))
	tx.Sign(payer.Key)

	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second}
	resp, err := client.Post(baseURL+"/v1/transactions", "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "submit transaction")
	}
	defer resp.Body.Close()

	var out json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("deposit rejected (%s): %s", resp.Status, out)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and root feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withNode(func(n *Node) error {
				if err := n.Replay(); err != nil {
					n.log.Warn().Err(err).Msg("commitment index does not match ledger")
				}
				err := n.Serve(ctx)
				if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newRootsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "Print the pool head and root history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(func(n *Node) error {
				info, err := n.Info()
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}
}

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Check the commitment index against the ledger's pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withNode(func(n *Node) error {
				if err := n.Replay(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "index matches ledger (%d commitments)\n", n.index.Count())
				return nil
			})
		},
	}
}

func newNoteCmd() *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "note [note]",
		Short: "Generate a note, or show the commitment of an existing one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				n   *note.Note
				err error
			)
			if len(args) == 1 {
				n, err = note.Parse(args[0])
			} else {
				n, err = note.New(amount)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"note":           n.String(),
				"amount":         n.Amount,
				"commitment":     n.Commitment(),
				"nullifier_hash": n.NullifierHash(),
			})
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount bound into a new note")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
