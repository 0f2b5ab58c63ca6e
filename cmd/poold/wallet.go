// wallet.go - Payer key files
package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/pkg/errors"

	"shieldedpool/internal/runtime"
)

// KeyFile is the on-disk form of a payer keypair.
type KeyFile struct {
	Pubkey runtime.Pubkey `json:"pubkey"`
	Seed   hexutil.Bytes  `json:"seed"`
}

// Wallet is a loaded payer.
type Wallet struct {
	Pubkey runtime.Pubkey
	Key    ed25519.PrivateKey
}

// NewWallet generates a fresh payer.
func NewWallet() (*Wallet, error) {
	pub, key, err := runtime.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Wallet{Pubkey: pub, Key: key}, nil
}

// Save writes the wallet seed to path with owner-only permissions.
func (w *Wallet) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "create key directory")
	}
	raw, err := json.MarshalIndent(KeyFile{Pubkey: w.Pubkey, Seed: w.Key.Seed()}, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, raw, 0600), "write key file")
}

// LoadWallet reads a key file written by Save.
func LoadWallet(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	var kf KeyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, errors.Wrap(err, "decode key file")
	}
	pub, key, err := runtime.KeyFromSeed(kf.Seed)
	if err != nil {
		return nil, err
	}
	if pub != kf.Pubkey {
		return nil, errors.Errorf("key file %s: seed does not match pubkey", path)
	}
	return &Wallet{Pubkey: pub, Key: key}, nil
}
